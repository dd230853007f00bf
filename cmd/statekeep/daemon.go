package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/statekeep/internal/daemon"
	"git.home.luguber.info/inful/statekeep/internal/keeper"
	"git.home.luguber.info/inful/statekeep/internal/metrics"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	StopTimeout time.Duration `help:"Grace period for in-flight work on shutdown" default:"30s"`
}

func (d *DaemonCmd) Run(_ *Global, root *CLI) error {
	var (
		registry *prom.Registry
		recorder metrics.Recorder
	)
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		registry = prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(registry)
	}

	k, err := keeper.New(cfg, keeper.WithRecorder(recorder), keeper.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	defer func() { _ = k.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("Starting daemon mode", slog.String("config", root.Config))
	return daemon.New(k, daemon.WithRegistry(registry)).Run(ctx, d.StopTimeout)
}
