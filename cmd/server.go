package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/opsdesk/internal/bridge"
	"github.com/nextlevelbuilder/opsdesk/internal/bus"
	"github.com/nextlevelbuilder/opsdesk/internal/config"
	"github.com/nextlevelbuilder/opsdesk/internal/engine"
	"github.com/nextlevelbuilder/opsdesk/internal/gateway"
	"github.com/nextlevelbuilder/opsdesk/internal/store/rest"
	"github.com/nextlevelbuilder/opsdesk/internal/telemetry"
)

func runServer() {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	msgStore := rest.NewMessageStore(cfg.Store.BaseURL, cfg.Store.Token, cfg.Store.TimeoutSec)
	handoffAPI := rest.NewHandoffAPI(cfg.Store.BaseURL, cfg.Store.Token, cfg.Store.TimeoutSec)
	events := bus.NewEventBus()

	var live *bridge.LiveSync
	if cfg.Bridge.APIURL != "" {
		api := bridge.NewHTTPAPI(cfg.Bridge.APIURL, cfg.Bridge.Token)
		live = bridge.NewLiveSync(api, cfg.Bridge.WSURL, cfg.Bridge.Token, func(event string, payload any) {
			events.Broadcast(bus.Event{Name: event, Payload: payload})
		})
	}

	eng := engine.New(cfg, msgStore, handoffAPI, events, live)
	srv := gateway.NewServer(cfg, events, eng)

	eng.Start(ctx)
	defer eng.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		return cfg.Watch(gctx, cfgPath, eng.ApplyRefreshConfig)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func setupLogging(lc config.LogConfig) {
	level := slog.LevelInfo
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
