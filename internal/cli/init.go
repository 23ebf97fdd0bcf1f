// Package cli provides common process initialization shared by
// cmd/ledgerctl and cmd/ledger-sync-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fundledger/internal/amqp"
	"fundledger/internal/auth"
	"fundledger/internal/config"
	"fundledger/internal/log"
	"fundledger/internal/services"
	"fundledger/internal/storage"
)

// SetupLogger builds the process logger for component, installs it as the
// slog default and returns it.
func SetupLogger(level, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(level),
		Component: component,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads and validates configuration.
func LoadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg, err := LoadConfig()
	if err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitStore opens the SQLite store, migrating it first.
// Returns the store or exits the process on failure.
func InitStore(logger *log.Logger, dbPath string) *storage.SQLiteStore {
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite store", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return store
}

// ConnectAMQP returns a client when AMQP_URL is set. A broker that cannot be
// reached is logged and yields nil: posting keeps working and the worker's
// sweep mirrors later.
func ConnectAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled - no AMQP_URL provided")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to connect to AMQP, continuing without events", "error", err)
		return nil
	}
	return client
}

// NewResolver builds the cached identity resolver over store.
func NewResolver(store *storage.SQLiteStore, cfg *config.Config) *auth.Resolver {
	return auth.NewResolver(store.Repository(), cfg.AuthCacheSize, cfg.AuthCacheTTL)
}

// NewLedgerService wires the service from configuration. client may be nil.
func NewLedgerService(logger *log.Logger, store *storage.SQLiteStore, client *amqp.Client, resolver *auth.Resolver, cfg *config.Config) (*services.LedgerService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("load location: %w", err)
	}

	// A nil *amqp.Client must not become a non-nil Publisher.
	var publisher services.Publisher
	if client != nil {
		publisher = client
	}

	return services.NewLedgerService(store, publisher, resolver, log.NewAudit(logger), services.Options{
		EnforceBalance: cfg.EnforceBalance,
		Location:       loc,
	}), nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup ran.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
