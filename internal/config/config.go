package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/simp-lee/waterfall/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Cache     CacheConfig     `koanf:"cache"`
	Waterfall WaterfallConfig `koanf:"waterfall"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string     `koanf:"host"`
	Port    int        `koanf:"port"`
	Mode    string     `koanf:"mode"`
	Timeout string     `koanf:"timeout"`
	CORS    CORSConfig `koanf:"cors"`
}

// CORSConfig holds CORS middleware settings.
type CORSConfig struct {
	AllowOrigins     []string `koanf:"allow_origins"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           string   `koanf:"max_age"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `koanf:"driver"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Postgres PostgresConfig `koanf:"postgres"`
	Pool     PoolConfig     `koanf:"pool"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	DBName   string `koanf:"dbname"`
	SSLMode  string `koanf:"sslmode"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxIdleConns    int    `koanf:"max_idle_conns"`
	MaxOpenConns    int    `koanf:"max_open_conns"`
	ConnMaxLifetime string `koanf:"conn_max_lifetime"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level           string `koanf:"level"`
	Format          string `koanf:"format"`
	Color           *bool  `koanf:"color"`
	FilePath        string `koanf:"file_path"`
	MaxSizeMB       int    `koanf:"max_size_mb"`
	RetentionDays   int    `koanf:"retention_days"`
	MaxBackups      int    `koanf:"max_backups"`
	CompressRotated *bool  `koanf:"compress_rotated"`
}

// CacheConfig holds the Redis layout cache settings.
type CacheConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
	TTL      string `koanf:"ttl"`
}

// WaterfallConfig holds the default layout settings and the card source.
type WaterfallConfig struct {
	Gap             float64     `koanf:"gap"`
	Column          int         `koanf:"column"`
	Bottom          float64     `koanf:"bottom"`
	PageSize        int         `koanf:"page_size"`
	MaxPageSize     int         `koanf:"max_page_size"`
	MaxPage         int         `koanf:"max_page"`
	PageBase        *int        `koanf:"page_base"`
	BottomReference string      `koanf:"bottom_reference"`
	Gutter          string      `koanf:"gutter"`
	Rounding        string      `koanf:"rounding"`
	ChromeHeight    float64     `koanf:"chrome_height"`
	ContainerWidth  float64     `koanf:"container_width"`
	Source          string      `koanf:"source"`
	RemoteURL       string      `koanf:"remote_url"`
	RemoteTimeout   string      `koanf:"remote_timeout"`
	Retry           RetryConfig `koanf:"retry"`
}

// RetryConfig controls how failed page fetches are retried.
type RetryConfig struct {
	Attempts       int    `koanf:"attempts"`
	InitialBackoff string `koanf:"initial_backoff"`
	MaxBackoff     string `koanf:"max_backoff"`
}

// Settings converts the waterfall section into layout settings. It does not
// validate; NewLayoutConfig does.
func (w WaterfallConfig) Settings() domain.LayoutSettings {
	return domain.LayoutSettings{
		Gap:             w.Gap,
		Column:          w.Column,
		Bottom:          w.Bottom,
		PageSize:        w.PageSize,
		PageBase:        w.PageBase,
		BottomReference: domain.BottomReference(w.BottomReference),
		Gutter:          domain.Gutter(w.Gutter),
		Rounding:        domain.Rounding(w.Rounding),
		ChromeHeight:    w.ChromeHeight,
	}
}

// Load reads configuration from a YAML file and overlays environment variables.
// Environment variables use the prefix "APP__" and double-underscore as the
// hierarchy separator. Single underscores are preserved as part of the key name.
// For example, APP__SERVER__PORT=9090 overrides server.port and
// APP__WATERFALL__PAGE_SIZE=30 overrides waterfall.page_size.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}

	if err := k.Load(env.Provider("APP__", ".", func(s string) string {
		key := strings.TrimPrefix(s, "APP__")
		key = strings.ToLower(key)
		key = strings.ReplaceAll(key, "__", ".")
		return key
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints and supported values, and
// normalizes whitespace and defaults in place.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateWaterfall(); err != nil {
		return err
	}
	return c.validateLog()
}

func (c *Config) validateServer() error {
	mode := strings.TrimSpace(c.Server.Mode)
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		c.Server.Mode = mode
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", c.Server.Mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d: must be between 1 and 65535", c.Server.Port)
	}

	host := strings.TrimSpace(c.Server.Host)
	if host == "" {
		return fmt.Errorf("server.host is required")
	}
	c.Server.Host = host

	c.Server.Timeout = strings.TrimSpace(c.Server.Timeout)
	if err := checkOptionalDuration("server.timeout", c.Server.Timeout); err != nil {
		return err
	}

	c.Server.CORS.MaxAge = strings.TrimSpace(c.Server.CORS.MaxAge)
	if err := checkOptionalDuration("server.cors.max_age", c.Server.CORS.MaxAge); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database.driver %q: must be one of %q, %q", c.Database.Driver, "sqlite", "postgres")
	}

	if c.Database.Driver == "sqlite" {
		sqlitePath := strings.TrimSpace(c.Database.SQLite.Path)
		if sqlitePath == "" {
			return fmt.Errorf("database.sqlite.path is required when driver is sqlite")
		}
		c.Database.SQLite.Path = sqlitePath
	}

	if c.Database.Driver == "postgres" {
		pg := &c.Database.Postgres
		pg.Host = strings.TrimSpace(pg.Host)
		pg.User = strings.TrimSpace(pg.User)
		pg.DBName = strings.TrimSpace(pg.DBName)
		pg.SSLMode = strings.TrimSpace(pg.SSLMode)

		if pg.Host == "" {
			return fmt.Errorf("database.postgres.host is required when driver is postgres")
		}
		if pg.Port < 1 || pg.Port > 65535 {
			return fmt.Errorf("invalid database.postgres.port %d: must be between 1 and 65535", pg.Port)
		}
		if pg.User == "" {
			return fmt.Errorf("database.postgres.user is required when driver is postgres")
		}
		if pg.DBName == "" {
			return fmt.Errorf("database.postgres.dbname is required when driver is postgres")
		}
		switch pg.SSLMode {
		case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
		default:
			return fmt.Errorf("invalid database.postgres.sslmode %q: must be one of %q, %q, %q, %q, %q, %q", pg.SSLMode, "disable", "allow", "prefer", "require", "verify-ca", "verify-full")
		}
		if c.Server.Mode == gin.ReleaseMode {
			switch pg.SSLMode {
			case "require", "verify-ca", "verify-full":
			default:
				return fmt.Errorf("invalid database.postgres.sslmode %q for server.mode %q: must be one of %q, %q, %q", pg.SSLMode, gin.ReleaseMode, "require", "verify-ca", "verify-full")
			}
		}
	}

	c.Database.Pool.ConnMaxLifetime = strings.TrimSpace(c.Database.Pool.ConnMaxLifetime)
	return checkOptionalDuration("database.pool.conn_max_lifetime", c.Database.Pool.ConnMaxLifetime)
}

func (c *Config) validateCache() error {
	c.Cache.TTL = strings.TrimSpace(c.Cache.TTL)
	c.Cache.Addr = strings.TrimSpace(c.Cache.Addr)
	if !c.Cache.Enabled {
		return nil
	}

	if c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when cache is enabled")
	}
	if c.Cache.DB < 0 {
		return fmt.Errorf("invalid cache.db %d: must not be negative", c.Cache.DB)
	}
	if c.Cache.TTL == "" {
		return fmt.Errorf("cache.ttl is required when cache is enabled")
	}
	if err := checkOptionalDuration("cache.ttl", c.Cache.TTL); err != nil {
		return err
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "waterfall:"
	}
	return nil
}

func (c *Config) validateWaterfall() error {
	w := &c.Waterfall

	if w.MaxPageSize <= 0 {
		w.MaxPageSize = 100
	}
	if w.PageSize > w.MaxPageSize {
		return fmt.Errorf("invalid waterfall.page_size %d: must not exceed waterfall.max_page_size %d", w.PageSize, w.MaxPageSize)
	}
	if w.MaxPage <= 0 {
		w.MaxPage = 50
	}
	if !(w.ContainerWidth > 0) {
		return fmt.Errorf("invalid waterfall.container_width %v: must be greater than 0", w.ContainerWidth)
	}

	w.BottomReference = strings.ToLower(strings.TrimSpace(w.BottomReference))
	w.Gutter = strings.ToLower(strings.TrimSpace(w.Gutter))
	w.Rounding = strings.ToLower(strings.TrimSpace(w.Rounding))

	// Layout rules live in the domain; a placeholder source lets them run here.
	settings := w.Settings()
	if _, err := domain.NewLayoutConfig(settings, domain.CardSourceFunc(nil)); err != nil {
		return fmt.Errorf("invalid waterfall config: %w", err)
	}

	w.Source = strings.ToLower(strings.TrimSpace(w.Source))
	switch w.Source {
	case "", "local":
		w.Source = "local"
	case "remote":
		u, err := url.Parse(strings.TrimSpace(w.RemoteURL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid waterfall.remote_url %q: must be an absolute http(s) url when source is remote", w.RemoteURL)
		}
		w.RemoteURL = strings.TrimSpace(w.RemoteURL)
	default:
		return fmt.Errorf("invalid waterfall.source %q: must be one of %q, %q", w.Source, "local", "remote")
	}

	w.RemoteTimeout = strings.TrimSpace(w.RemoteTimeout)
	if err := checkOptionalDuration("waterfall.remote_timeout", w.RemoteTimeout); err != nil {
		return err
	}

	if w.Retry.Attempts < 0 {
		return fmt.Errorf("invalid waterfall.retry.attempts %d: must not be negative", w.Retry.Attempts)
	}
	if w.Retry.Attempts == 0 {
		w.Retry.Attempts = 1
	}
	w.Retry.InitialBackoff = strings.TrimSpace(w.Retry.InitialBackoff)
	w.Retry.MaxBackoff = strings.TrimSpace(w.Retry.MaxBackoff)
	if err := checkOptionalDuration("waterfall.retry.initial_backoff", w.Retry.InitialBackoff); err != nil {
		return err
	}
	return checkOptionalDuration("waterfall.retry.max_backoff", w.Retry.MaxBackoff)
}

func (c *Config) validateLog() error {
	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	format := strings.ToLower(strings.TrimSpace(c.Log.Format))
	switch format {
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("invalid log.format %q: must be one of %q, %q", c.Log.Format, "text", "json")
	}
	return nil
}

// checkOptionalDuration accepts an empty value or a positive Go duration.
func checkOptionalDuration(name, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s %q: must be greater than 0", name, value)
	}
	return nil
}

// Duration parses an already validated optional duration, returning def when empty.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
