package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/micro-ha/att-presence/addon/internal/config"
	"github.com/micro-ha/att-presence/addon/internal/configsync"
	"github.com/micro-ha/att-presence/addon/internal/devicelist"
	"github.com/micro-ha/att-presence/addon/internal/gateway"
	httpapi "github.com/micro-ha/att-presence/addon/internal/http"
	"github.com/micro-ha/att-presence/addon/internal/http/handlers"
	"github.com/micro-ha/att-presence/addon/internal/logging"
	"github.com/micro-ha/att-presence/addon/internal/model"
	"github.com/micro-ha/att-presence/addon/internal/mqtt"
	"github.com/micro-ha/att-presence/addon/internal/oui"
	"github.com/micro-ha/att-presence/addon/internal/poller"
	"github.com/micro-ha/att-presence/addon/internal/service"
	"github.com/micro-ha/att-presence/addon/internal/snapshot"
	"github.com/micro-ha/att-presence/addon/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel())

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server terminated with error", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
		return err
	}
	repo, err := storage.New(ctx, cfg.DBPath, logging.Component(logger, "storage"))
	if err != nil {
		return err
	}
	defer repo.Close()

	store := snapshot.NewStore(storage.NewSnapshotWriter(repo, logging.Component(logger, "storage")))
	known, err := repo.LoadDevices(ctx)
	if err != nil {
		logger.Warn("failed to restore known devices", "err", err)
	} else {
		store.Seed(known)
		logger.Info("restored known devices", "count", len(known))
	}

	ouiDB, err := oui.LoadWithOverlay(cfg.OUIPath)
	if err != nil {
		return err
	}

	cfgManager := configsync.NewManager(configsync.NewClient(cfg.AddonOptionsPath), repo, logging.Component(logger, "configsync"))
	if _, err := cfgManager.Refresh(ctx); err != nil {
		logger.Warn("initial config refresh failed", "err", err)
	}
	if _, configured := cfgManager.Get(); !configured {
		logger.Warn("router session id not set; polling paused until options are supplied")
	}

	svc := service.New(
		gateway.NewClient(cfg.RouterTimeout),
		devicelist.New(ouiDB),
		cfgManager,
		store,
		logging.Component(logger, "service"),
	)
	devicePoller := poller.New(svc, cfgManager, logging.Component(logger, "poller"))

	if cfg.MQTTEnabled() {
		publisher := mqtt.NewPublisher(nil, cfgManager, cfg.MQTT.DiscoveryPrefix, cfg.MQTT.NodeID, logging.Component(logger, "mqtt"))
		store.AddSink(publisher)
		err := publisher.Connect(mqtt.BrokerOptions{
			Host:     cfg.MQTT.Host,
			Port:     cfg.MQTT.Port,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			ClientID: cfg.MQTT.ClientID,
		})
		if err != nil {
			logger.Warn("mqtt broker unavailable; retrying in background", "err", err, "host", cfg.MQTT.Host)
		}
		defer publisher.Close()
	}

	api := handlers.New(svc, devicePoller, cfgManager, cfgManager, logging.Component(logger, "http"))
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(api),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	optSync := &optionsSync{manager: cfgManager, service: svc, poller: devicePoller, logger: logger}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		devicePoller.Run(gctx)
		return nil
	})
	g.Go(func() error {
		optSync.runPeriodic(gctx, cfg.ConfigRefreshInterval)
		return nil
	})
	if cfg.SupervisorToken != "" {
		watcher := configsync.NewWatcher(cfg.HABaseURL, cfg.SupervisorToken, logging.Component(logger, "watcher"))
		g.Go(func() error {
			watcher.Run(gctx, func(patch model.OptionsPatch) { optSync.onEvent(gctx, patch) })
			return nil
		})
	} else {
		logger.Warn("SUPERVISOR_TOKEN is empty; options event watcher disabled")
	}
	g.Go(func() error {
		logger.Info("server starting", "addr", httpServer.Addr)
		return httpapi.RunServer(gctx, httpServer)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
