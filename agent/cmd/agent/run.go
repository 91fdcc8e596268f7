package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shotspool/shotspool/agent/internal/capture"
	"github.com/shotspool/shotspool/agent/internal/config"
	"github.com/shotspool/shotspool/agent/internal/control"
	"github.com/shotspool/shotspool/agent/internal/driver"
	"github.com/shotspool/shotspool/agent/internal/notify"
	"github.com/shotspool/shotspool/agent/internal/probe"
	"github.com/shotspool/shotspool/agent/internal/security"
	"github.com/shotspool/shotspool/agent/internal/shipper"
	"github.com/shotspool/shotspool/agent/internal/spool"
	"github.com/shotspool/shotspool/agent/internal/transport"
	"github.com/shotspool/shotspool/pkg/logging"
)

func runCmd() *cobra.Command {
	var display int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the capture and delivery loop until interrupted",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, configPath, capture.Screen{Display: display})
		},
	}
	cmd.Flags().IntVar(&display, "display", 0, "index of the display to capture")
	return cmd
}

// collector builds the probe and shipper for cfg's collector settings.
func collector(cfg config.AgentConfig) (driver.Prober, driver.Deliverer, error) {
	client, err := transport.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	p := probe.New(client, cfg.HealthEndpoint(), cfg.CollectorURL)
	s := shipper.New(client, shipper.Options{
		URL:        cfg.CollectorURL,
		MaxRetries: cfg.Delivery.MaxRetries,
		RetryDelay: cfg.Delivery.RetryDelay,
	})
	return p, s, nil
}

func run(ctx context.Context, path string, grabber capture.Grabber) error {
	cfg := config.LoadOrDefault(path)
	a := cfg.Agent

	closer, err := logging.Setup(a.Logging)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer closer.Close()

	slog.Info("shotspool-agent starting", "version", version, "config", path)

	store, err := spool.Open(a.Spool.Dir, a.Spool.MaxFiles)
	if err != nil {
		slog.Error("cannot open spool", "dir", a.Spool.Dir, "err", err)
		return err
	}

	p, s, err := collector(a)
	if err != nil {
		return err
	}
	go logCert(ctx, a)

	notifier := notify.New(a.Notify, a.SourceID)
	defer notifier.Wait()

	d, err := driver.New(a, driver.Deps{
		Capturer:  capture.New(grabber, a.Image.Format, a.Image.Quality),
		Prober:    p,
		Deliverer: s,
		Store:     store,
		Notifier:  notifier,
		Rebuild:   collector,
	})
	if err != nil {
		return err
	}

	go func() {
		if err := config.Watch(ctx, path, func(updated *config.Config) {
			if err := d.Reload(updated.Agent); err != nil {
				slog.Warn("config reload dropped", "err", err)
			}
		}); err != nil {
			slog.Warn("config watcher stopped", "err", err)
		}
	}()

	if addr := a.Control.ListenAddr; addr != "" {
		h := control.New(d, store, func() (*config.Config, error) { return config.Load(path) })
		go func() {
			if err := control.Serve(ctx, addr, h); err != nil {
				slog.Error("control API stopped", "err", err)
			}
		}()
	}

	err = d.Run(ctx)
	slog.Info("shotspool-agent shutting down")
	return err
}

// logCert warns when the collector's certificate is expiring, expired or
// unreachable. Plain HTTP collectors are skipped.
func logCert(ctx context.Context, a config.AgentConfig) {
	cs := security.Check(ctx, a)
	if cs == nil {
		return
	}
	attrs := []any{"endpoint", cs.Endpoint, "status", cs.Status, "days_left", cs.DaysLeft, "issuer", cs.Issuer}
	if cs.Status == "valid" {
		slog.Info("collector certificate", attrs...)
		return
	}
	slog.Warn("collector certificate needs attention", attrs...)
}
