package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	godbus "github.com/godbus/dbus/v5"

	"github.com/cptspacemanspiff/eco-monitor/internal/bridge"
	"github.com/cptspacemanspiff/eco-monitor/internal/config"
	"github.com/cptspacemanspiff/eco-monitor/internal/connectivity"
	dbussvc "github.com/cptspacemanspiff/eco-monitor/internal/dbus"
	"github.com/cptspacemanspiff/eco-monitor/internal/device"
	"github.com/cptspacemanspiff/eco-monitor/internal/httpapi"
	"github.com/cptspacemanspiff/eco-monitor/internal/logging"
	"github.com/cptspacemanspiff/eco-monitor/internal/monitor"
	"github.com/cptspacemanspiff/eco-monitor/internal/storage"
	"github.com/cptspacemanspiff/eco-monitor/internal/stream"
	"github.com/cptspacemanspiff/eco-monitor/internal/telemetry"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the TOML config file")
	verbose := flag.Bool("verbose", false, "enable all verbose logging (equivalent to -log=all)")
	logFlag := flag.String("log", "", "comma-separated log topics: battery,power,thermal,device,connectivity,bridge,journal (or 'all')")
	resetDB := flag.Bool("reset-db", false, "delete the event journal and exit")
	flag.Parse()

	logger := logging.New(os.Stderr, logging.ParseTopics(*logFlag, *verbose))

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		logger.Error("load config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	if *resetDB {
		if err := resetJournal(cfg.Storage.DBPath); err != nil {
			logger.Error("delete database", "err", err)
			os.Exit(1)
		}
		logger.Info("database deleted", "path", cfg.Storage.DBPath)
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("eco-monitor-daemon failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	batteryLog := logger.With("topic", logging.TopicBattery)
	powerLog := logger.With("topic", logging.TopicPower)
	connLog := logger.With("topic", logging.TopicConnectivity)
	bridgeLog := logger.With("topic", logging.TopicBridge)
	journalLog := logger.With("topic", logging.TopicJournal)
	deviceLog := logger.With("topic", logging.TopicDevice)
	thermalLog := logger.With("topic", logging.TopicThermal)

	policy, err := cfg.Scoring.Policy()
	if err != nil {
		return err
	}

	// A nil journal interface disables persistence in the bridge.
	var journal bridge.Journal
	if cfg.Journal.Enabled {
		store, err := openJournal(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		journal = store
		go store.RunRetention(ctx, cfg.Journal.Retention(), cfg.Journal.CleanupInterval(), journalLog)
		logger.Info("event journal open", "path", cfg.Storage.DBPath, "retention_days", cfg.Journal.RetentionDays)
	}

	// Native observers share one system bus connection. Without it only the
	// sysfs and procfs backends remain.
	sysConn, err := godbus.ConnectSystemBus()
	if err != nil {
		logger.Warn("system bus unavailable, using sysfs fallbacks", "err", err)
	} else {
		defer sysConn.Close()
	}

	poll := cfg.Collection.PollInterval()
	battery := monitor.NewReader[monitor.BatteryReading](
		monitor.NewUPower(sysConn, batteryLog),
		monitor.NewSysfsBattery(poll, batteryLog),
	)
	lowPower := monitor.NewReader[bool](
		monitor.NewPowerProfiles(sysConn, powerLog),
		monitor.NewPlatformProfile(poll, powerLog),
	)
	netSource := connectivity.NewSource(
		monitor.NewNetworkManager(sysConn, connLog),
		monitor.NewRouteTable(poll, sysConn, connLog),
		connLog,
	)

	loop := stream.NewLoop()
	go loop.Run(ctx)

	listeners := []bridge.Listener{
		bridge.LowPowerListener(stream.NewManager(bridge.ChannelLowPower, monitor.NewLowPowerSource(lowPower, powerLog), loop, powerLog)),
		bridge.BatteryStateListener(stream.NewManager(bridge.ChannelBatteryState, monitor.NewBatteryStateSource(battery, batteryLog), loop, batteryLog)),
		bridge.BatteryLevelListener(stream.NewManager(bridge.ChannelBatteryLevel, monitor.NewBatteryLevelSource(battery, batteryLog), loop, batteryLog)),
		bridge.ConnectivityListener(stream.NewManager[telemetry.Connectivity](bridge.ChannelConnectivity, netSource, loop, connLog)),
	}

	dev := device.New(device.Options{
		Readers:       device.DefaultReaders(),
		Battery:       battery,
		LowPower:      lowPower,
		Connectivity:  netSource,
		StoragePath:   cfg.Storage.MountPath,
		Policy:        policy,
		Logger:        deviceLog,
		ThermalLogger: thermalLog,
	})
	b := bridge.New(dev, listeners, journal, bridgeLog)

	if cfg.Bridge.DBus {
		busConn, err := dbussvc.Connect(cfg.Bridge.Bus)
		if err != nil {
			return err
		}
		defer busConn.Close()
		svc := dbussvc.NewService(b, busConn, bridgeLog)
		if err := svc.Export(busConn); err != nil {
			return err
		}
		logger.Info("D-Bus service registered", "name", dbussvc.BusName, "bus", cfg.Bridge.Bus)
	}

	var srv *http.Server
	if cfg.Bridge.HTTPAddr != "" {
		api := httpapi.NewServer(b, bridgeLog)
		if cfg.Bridge.Metrics {
			api.EnableMetrics()
		}
		srv = &http.Server{
			Addr:              cfg.Bridge.HTTPAddr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server", "err", err)
				stop()
			}
		}()
		logger.Info("HTTP mirror listening", "addr", cfg.Bridge.HTTPAddr, "metrics", cfg.Bridge.Metrics)
	}

	tracker := &sleepTracker{read: battery.Read, log: powerLog}
	sleepWatch, err := monitor.WatchSleep(sysConn, monitor.SleepHooks{
		Suspending: tracker.suspend,
		Resumed:    tracker.resume,
	}, powerLog)
	if err != nil {
		logger.Warn("sleep monitor unavailable", "err", err)
	} else {
		defer sleepWatch.Close()
	}

	logger.Info("eco-monitor-daemon started", "poll_interval", poll)
	<-ctx.Done()
	logger.Info("shutting down")

	// Ending subscriptions first lets event streams close before the HTTP
	// server waits for idle connections.
	b.Close()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "err", err)
		}
	}
	return nil
}

func openJournal(path string) (*storage.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return store, nil
}

func resetJournal(path string) error {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
