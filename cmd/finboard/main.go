package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finboard/internal/cli"
	"finboard/internal/config"
	apphttp "finboard/internal/http"
	"finboard/internal/log"
	"finboard/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg, log.ComponentApp)
	cli.MustValidate(logger, cfg.Validate)

	tokens := cli.OpenTokenBackend(context.Background(), logger, cfg)
	cipher := cli.NewCipher(logger, cfg)
	publisher, closePublisher := cli.ActivityPublisher(logger, cfg)

	sessions, err := apphttp.NewRegistry(apphttp.RegistryOptions{
		Backend:           tokens.Backend,
		Cipher:            cipher,
		APIBaseURL:        cfg.APIBaseURL,
		APITimeout:        cfg.APITimeout,
		APIRefreshTimeout: cfg.APIRefreshTimeout,
		Publisher:         publisher,
		Logger:            logger,
		CookieName:        cfg.SessionCookieName,
		CookieSecure:      cfg.SessionCookieSecure,
		IdleTTL:           cfg.SessionIdleTTL,
		MaxSessions:       cfg.SessionMax,
		ForgetOnEvict:     cfg.TokenBackend == "memory",
	})
	if err != nil {
		logger.Error("Failed to create session registry", log.FieldError, err)
		os.Exit(1)
	}

	checks := map[string]apphttp.Check{}
	if tokens.Ping != nil {
		checks["token_backend"] = apphttp.Check(tokens.Ping)
	}
	srv := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		Sessions:       sessions,
		Logger:         logger,
		LoginRateLimit: cfg.LoginRateLimit,
		Checks:         checks,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 2*cfg.APITimeout + 10*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		closePublisher()
		if err := tokens.Close(); err != nil {
			logger.Warn("Failed to close token backend", log.FieldError, err)
		}
	})

	if purger, ok := tokens.Backend.(worker.Purger); ok && cfg.SQLiteTokenRetention > 0 {
		go worker.NewTokenPurger(purger, cfg.SQLiteTokenRetention, cfg.TokenPurgeInterval, logger).Run(ctx)
	}

	logger.Info("Starting finboard server",
		"port", cfg.Port,
		"api", cfg.APIBaseURL,
		"token_backend", cfg.TokenBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
