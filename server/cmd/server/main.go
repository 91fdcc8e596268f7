package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shotspool/shotspool/pkg/logging"
	"github.com/shotspool/shotspool/server/internal/auth"
	"github.com/shotspool/shotspool/server/internal/collector"
	"github.com/shotspool/shotspool/server/internal/config"
	"github.com/shotspool/shotspool/server/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	closer, err := logging.Setup(cfg.Server.Logging)
	if err != nil {
		slog.Error("failed to set up logging", "err", err)
		os.Exit(1)
	}
	defer closer.Close()

	slog.Info("shotspool-collector starting",
		"config", *configPath,
		"addr", cfg.Server.Addr(),
		"auth_mode", cfg.Server.Auth.Mode,
		"storage", cfg.Server.Storage.Backend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := storage.New(ctx, cfg.Server.Storage)
	if err != nil {
		slog.Error("failed to open storage", "err", err)
		os.Exit(1)
	}

	requireKey := auth.APIKey(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
		"/health", "/metrics",
	)
	handler := requireKey(collector.New(st, cfg.Server.MaxUploadBytes, collector.NewRegistry()))

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.Addr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shotspool-collector shutting down")
	shutCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutCtx) //nolint:errcheck
}
