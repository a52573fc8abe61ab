// Package cli holds the start-up steps shared by the finboard binaries and the
// finboard terminal client.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finboard/internal/amqp"
	"finboard/internal/backend"
	"finboard/internal/config"
	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/tokenstore"
)

// SetupLogger builds the process logger from the configured level and format
// and installs it as the default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// MustValidate exits the process when validate reports a problem.
func MustValidate(logger *log.Logger, validate func() error) {
	if err := validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
}

// OpenTokenBackend opens the configured token backend or exits the process.
func OpenTokenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid token backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize token backend", log.FieldError, err, "backend", cfg.TokenBackend)
		os.Exit(1)
	}
	return result
}

// NewCipher builds the token cipher or exits the process.
func NewCipher(logger *log.Logger, cfg *config.Config) *tokenstore.Cipher {
	if cfg.TokenObfuscationKey == config.DefaultObfuscationKey {
		logger.Warn("Using the built-in token obfuscation key; set TOKEN_OBFUSCATION_KEY")
	}
	c, err := tokenstore.NewCipher(cfg.TokenObfuscationKey)
	if err != nil {
		logger.Error("Failed to build token cipher", log.FieldError, err)
		os.Exit(1)
	}
	return c
}

// ActivityPublisher connects to the broker when AMQP_URL is set. Without one,
// or when the broker is unreachable, activity events are dropped.
func ActivityPublisher(logger *log.Logger, cfg *config.Config) (core.ActivityPublisher, func()) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled, activity events are not published")
		return core.NopPublisher{}, func() {}
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Warn("AMQP unavailable, activity events are not published", log.FieldError, err)
		return core.NopPublisher{}, func() {}
	}
	logger.Info("Publishing activity events", "exchange", cfg.AMQPExchange)
	return client, func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", log.FieldError, err)
		}
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
