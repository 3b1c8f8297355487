package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-gateway/internal/app"
	"crm-gateway/internal/config"
	"crm-gateway/internal/logger"

	"github.com/spf13/pflag"
)

func main() {
	logger.Init()

	configPath := pflag.StringP("config", "c", os.Getenv("CONFIG_FILE"), "path to an optional YAML config file")
	port := pflag.StringP("port", "p", "", "HTTP port, overrides APP_PORT")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("invalid configuration", map[string]any{
			"error": err.Error(),
		})
	}
	if *port != "" {
		cfg.AppPort = *port
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize app", map[string]any{
			"error": err.Error(),
		})
	}

	go func() {
		if err := application.Run(); err != nil {
			logger.Fatal("http server failed", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	logger.Info("crm-gateway started", map[string]any{
		"port":             cfg.AppPort,
		"identity_backend": cfg.IdentityBackend,
	})

	<-ctx.Done() // wait for Ctrl+C

	logger.Info("shutdown signal received", nil)

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("graceful shutdown failed", map[string]any{
			"error": err.Error(),
		})
	}

	logger.Info("crm-gateway stopped cleanly", nil)
}
