package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oauth-connect/internal/app"
	"oauth-connect/internal/config"
	"oauth-connect/internal/logger"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init(logger.Config{Env: cfg.LogEnv, Level: cfg.LogLevel})
			defer logger.Sync()

			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(
		parent,
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize app", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run()
	}()

	logger.Info("oauth-connect started", map[string]any{
		"port":            cfg.AppPort,
		"connect_enabled": cfg.ConnectEnabled,
		"firewall":        cfg.FirewallName,
	})

	select {
	case <-ctx.Done(): // wait for Ctrl+C
		logger.Info("shutdown signal received", nil)
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", map[string]any{
				"error": err.Error(),
			})
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	logger.Info("oauth-connect stopped cleanly", nil)
	return nil
}
