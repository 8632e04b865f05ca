package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"booking/internal/api"
	"booking/internal/booking"
	"booking/internal/clock"
	"booking/internal/config"
	"booking/internal/notify"
	"booking/internal/storage"
	"booking/internal/storage/cache"
	"booking/internal/storage/ch"
	"booking/internal/storage/pg"
	"booking/internal/storage/stubs"
	"booking/internal/telemetry"
)

// App represents the application
type App struct {
	config *config.Config
	logger *zap.Logger
	db        storage.Storage
	telemetry *telemetry.Providers
	server    *http.Server
}

// New loads the configuration from the environment and builds the application
func New() (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if envErr != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	return NewWithConfig(cfg, logger)
}

// NewWithConfig builds the application from an explicit configuration
func NewWithConfig(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger}

	logger.Info("Starting booking service",
		zap.String("storage_backend", cfg.StorageBackend),
		zap.Int("api_keys", len(cfg.APIKeys)))

	ctx := context.Background()

	// Initialize database
	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	notifier, err := app.initNotifier()
	if err != nil {
		app.db.Close()
		return nil, err
	}

	providers, err := telemetry.New(telemetry.Options{
		ServiceName: "booking",
		Exporter:    cfg.TelemetryExporter,
		Interval:    cfg.TelemetryInterval,
	})
	if err != nil {
		app.db.Close()
		return nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	providers.SetGlobal()
	app.telemetry = providers

	svc := booking.NewService(app.db, clock.System{}, notifier, logger)
	app.initHTTPServer(svc)

	return app, nil
}

// NewLogger builds a production zap logger at the given level
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// initDatabase opens the configured backend, wraps it with the cache and seeds it
func (a *App) initDatabase(ctx context.Context) error {
	var db storage.Storage
	switch a.config.StorageBackend {
	case config.BackendClickHouse:
		tlsStatus := "without TLS"
		if a.config.ClickHouseUseTLS {
			tlsStatus = "with TLS"
		}
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", a.config.ClickHouseHost),
			zap.Int("port", a.config.ClickHousePort),
			zap.String("database", a.config.ClickHouseDatabase),
			zap.String("user", a.config.ClickHouseUser),
			zap.String("tls", tlsStatus))
		clickhouseDB, err := ch.NewClickHouseDB(
			a.config.ClickHouseHost,
			a.config.ClickHousePort,
			a.config.ClickHouseDatabase,
			a.config.ClickHouseUser,
			a.config.ClickHousePassword,
			a.config.ClickHouseUseTLS,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		db = clickhouseDB
	case config.BackendPostgres:
		a.logger.Info("Connecting to PostgreSQL")
		postgresDB, err := pg.NewPostgresDB(ctx, a.config.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		db = postgresDB
	default:
		a.logger.Info("Using in-memory storage")
		db = stubs.NewMockDB()
	}

	if err := db.Initialize(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	if a.config.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: a.config.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			a.logger.Warn("Redis unreachable, resource cache will fall back to storage",
				zap.String("addr", a.config.RedisAddr), zap.Error(err))
		}
		a.logger.Info("Resource cache enabled", zap.String("addr", a.config.RedisAddr), zap.Duration("ttl", a.config.RedisCacheTTL))
		db = cache.New(db, client, a.config.RedisCacheTTL, a.logger)
	}

	if a.config.SeedDemoData {
		n, err := storage.SeedDemoData(ctx, db)
		if err != nil {
			db.Close()
			return err
		}
		a.logger.Info("Demo data seeded", zap.Int("resources", n))
	}

	a.db = db
	return nil
}

func (a *App) initNotifier() (notify.Notifier, error) {
	if a.config.TelegramToken == "" {
		return notify.Nop{}, nil
	}
	telegram, err := notify.NewTelegram(a.config.TelegramToken, a.config.TelegramChatID, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram notifier: %w", err)
	}
	return telegram, nil
}

func (a *App) initHTTPServer(svc *booking.Service) {
	gin.SetMode(a.config.GinMode)
	srv := api.NewServer(svc, a.config.APIKeys, a.logger,
		a.telemetry.MeterProvider.Meter("booking"),
		a.telemetry.TracerProvider.Tracer("booking/api"))

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Handler returns the HTTP handler of the application
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves HTTP and blocks until SIGINT or SIGTERM
func (a *App) Run() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		a.logger.Info("Shutting down...")
	case err := <-errChan:
		a.logger.Error("HTTP server error", zap.Error(err))
		a.Shutdown()
		return fmt.Errorf("http server failed: %w", err)
	}
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	// Shutdown HTTP server gracefully
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Flush pending metric and span exports
	if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	// Close database
	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	a.logger.Sync()
	return nil
}
