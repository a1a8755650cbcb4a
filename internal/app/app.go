package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/waterfall/internal/cache"
	"github.com/simp-lee/waterfall/internal/config"
	"github.com/simp-lee/waterfall/internal/domain"
	"github.com/simp-lee/waterfall/internal/feed"
	"github.com/simp-lee/waterfall/internal/middleware"
	"github.com/simp-lee/waterfall/internal/module/card"
	"github.com/simp-lee/waterfall/internal/module/waterfall"
	"github.com/simp-lee/waterfall/internal/source"
)

// App holds the core application dependencies and the HTTP server.
type App struct {
	engine *gin.Engine
	db     *gorm.DB
	redis  *redis.Client
	logger *logger.Logger
	cfg    *config.Config
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var newHTTPServer = func(addr string, handler http.Handler) httpServer {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// It sets up logging, the database, the layout cache, the card source,
// services, handlers, middleware and routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	success := false

	// 1. Setup logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	// 2. Setup database.
	db, err := config.SetupDatabase(&cfg.Database, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if success {
			return
		}
		sqlDB, err := db.DB()
		if err != nil {
			return
		}
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", slog.Any("error", err))
		}
	}()

	// 3. AutoMigrate in debug mode only.
	if cfg.Server.Mode == gin.DebugMode {
		if err := db.AutoMigrate(&domain.Card{}); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		log.Info("auto migration completed")
	}

	// 4. Layout cache.
	layoutCache, rdb, err := setupCache(&cfg.Cache, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup cache: %w", err)
	}
	defer func() {
		if success || rdb == nil {
			return
		}
		if err := rdb.Close(); err != nil {
			slog.Error("redis close error", slog.Any("error", err))
		}
	}()

	// 5. Manual dependency injection: repository → service → handler.
	wf := cfg.Waterfall
	settings := wf.Settings()
	pageBase := domain.DefaultPageBase
	if settings.PageBase != nil {
		pageBase = *settings.PageBase
	}

	cardSvc := card.NewService(card.NewRepository(db),
		card.WithCache(layoutCache),
		card.WithLogger(log.Logger),
		card.WithPageBase(pageBase),
	)

	src, err := resolveSource(wf, cardSvc)
	if err != nil {
		return nil, fmt.Errorf("setup card source: %w", err)
	}
	log.Info("card source selected", slog.String("source", wf.Source))

	waterfallSvc, err := waterfall.NewService(src, waterfall.Defaults{
		Layout:         settings,
		ContainerWidth: wf.ContainerWidth,
		MaxPageSize:    wf.MaxPageSize,
		MaxPage:        wf.MaxPage,
	},
		waterfall.WithCache(layoutCache),
		waterfall.WithLogger(log.Logger),
		waterfall.WithFeedOptions(feed.WithRetry(
			uint(wf.Retry.Attempts),
			config.Duration(wf.Retry.InitialBackoff, 0),
			config.Duration(wf.Retry.MaxBackoff, 0),
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("setup waterfall service: %w", err)
	}

	// 6. Create Gin engine with custom middleware (not gin.Default()).
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()

	// In release mode, when no allowlist is configured, default to deny cross-origin requests.
	corsConfig := resolveCORSConfig(cfg.Server.Mode, &cfg.Server.CORS)

	engine.Use(
		middleware.Recovery(log.Logger),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			TrustUpstream: false,
		}),
		middleware.LoggerWithConfig(log.Logger, middleware.LoggerConfig{
			SkipPaths: []string{"/health"},
		}),
		middleware.CORSWithConfig(corsConfig),
		middleware.Timeout(config.Duration(cfg.Server.Timeout, 0)),
	)

	// 7. Register all routes.
	if err := RegisterRoutes(engine, &RouteDeps{
		Modules: []Module{
			card.NewModule(card.NewHandler(cardSvc)),
			waterfall.NewModule(waterfall.NewHandler(waterfallSvc)),
		},
		DB:    db,
		Redis: rdb,
	}); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	success = true
	return &App{
		engine: engine,
		db:     db,
		redis:  rdb,
		logger: log,
		cfg:    cfg,
	}, nil
}

// setupCache returns the layout cache and, when Redis is enabled, its client.
func setupCache(cfg *config.CacheConfig, log *slog.Logger) (cache.LayoutCache, *redis.Client, error) {
	if !cfg.Enabled {
		return cache.Noop{}, nil, nil
	}
	client, err := cache.Connect(context.Background(), cfg.Addr, cfg.Password, cfg.DB, log)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewRedis(client, cfg.Prefix, config.Duration(cfg.TTL, 10*time.Minute)), client, nil
}

// resolveSource picks the card source of the waterfall.
func resolveSource(wf config.WaterfallConfig, local domain.CardSource) (domain.CardSource, error) {
	switch wf.Source {
	case "", "local":
		return local, nil
	case "remote":
		remote, err := source.NewRemote(wf.RemoteURL, config.Duration(wf.RemoteTimeout, 0))
		if err != nil {
			return nil, err
		}
		return remote, nil
	default:
		return nil, fmt.Errorf("unknown card source %q", wf.Source)
	}
}

func resolveCORSConfig(mode string, cfg *config.CORSConfig) middleware.CORSConfig {
	corsConfig := middleware.DefaultCORSConfig()

	if cfg != nil {
		corsConfig.AllowCredentials = cfg.AllowCredentials
		if d := config.Duration(cfg.MaxAge, 0); d > 0 {
			corsConfig.MaxAge = strconv.Itoa(int(d / time.Second))
		}
		if len(cfg.AllowOrigins) > 0 {
			corsConfig.AllowOrigins = cfg.AllowOrigins
			return corsConfig
		}
	}

	if mode == gin.ReleaseMode {
		corsConfig.AllowOrigins = []string{}
	}

	return corsConfig
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
// It performs graceful shutdown with a 5-second timeout and closes the
// database, Redis and the logger.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	log := slog.Default()
	if a.logger != nil {
		log = a.logger.Logger
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine)

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	if runErr == nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.Any("error", err))
		}
	}

	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Error("database close error", slog.Any("error", err))
			} else {
				log.Info("database connection closed")
			}
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Error("redis close error", slog.Any("error", err))
		} else {
			log.Info("redis connection closed")
		}
	}

	log.Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}
