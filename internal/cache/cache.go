// Package cache stores computed waterfall layouts.
//
// Entries are keyed by the caller and scoped by a generation counter: every
// write to the card store bumps the generation, so stale layouts are never
// read again and simply expire.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// LayoutCache is a cache-aside store for computed layouts.
type LayoutCache interface {
	// Get loads key into dest. It reports false on a miss.
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, v any) error
	// Generation returns the current card store generation.
	Generation(ctx context.Context) (int64, error)
	// Bump invalidates every entry written under the previous generation.
	Bump(ctx context.Context) error
}

// Noop is a LayoutCache that stores nothing.
type Noop struct{}

func (Noop) Get(context.Context, string, any) (bool, error) { return false, nil }
func (Noop) Set(context.Context, string, any) error         { return nil }
func (Noop) Generation(context.Context) (int64, error)      { return 0, nil }
func (Noop) Bump(context.Context) error                     { return nil }

// Redis is a LayoutCache backed by go-redis.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis wraps an existing client. Keys are prefixed with prefix; entries
// expire after ttl.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// Connect creates a client for addr and pings it.
func Connect(ctx context.Context, addr, password string, db int, log *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}

	if log != nil {
		log.Info("redis connected", slog.String("addr", addr), slog.Int("db", db))
	}
	return client, nil
}

func (r *Redis) entryKey(key string) string { return r.prefix + "layout:" + key }
func (r *Redis) genKey() string             { return r.prefix + "generation" }

// Get implements LayoutCache.
func (r *Redis) Get(ctx context.Context, key string, dest any) (bool, error) {
	s, err := r.client.Get(ctx, r.entryKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, fmt.Errorf("decode cached layout %q: %w", key, err)
	}
	return true, nil
}

// Set implements LayoutCache.
func (r *Redis) Set(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode layout %q: %w", key, err)
	}
	return r.client.Set(ctx, r.entryKey(key), b, r.ttl).Err()
}

// Generation implements LayoutCache.
func (r *Redis) Generation(ctx context.Context) (int64, error) {
	n, err := r.client.Get(ctx, r.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Bump implements LayoutCache.
func (r *Redis) Bump(ctx context.Context) error {
	return r.client.Incr(ctx, r.genKey()).Err()
}

// Aside tries the cache first; on a miss it calls fetch, which must fill dest,
// and stores the result. Cache failures are logged and treated as misses.
func Aside(ctx context.Context, c LayoutCache, log *slog.Logger, key string, dest any, fetch func() error) error {
	if log == nil {
		log = slog.Default()
	}

	found, err := c.Get(ctx, key, dest)
	if err != nil {
		log.WarnContext(ctx, "layout cache read failed", slog.String("key", key), slog.Any("error", err))
	}
	if found {
		return nil
	}

	if err := fetch(); err != nil {
		return err
	}

	if err := c.Set(ctx, key, dest); err != nil {
		log.WarnContext(ctx, "layout cache write failed", slog.String("key", key), slog.Any("error", err))
	}
	return nil
}
