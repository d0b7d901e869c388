package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AaronLay10/SentientTimeline/internal/api"
	"github.com/AaronLay10/SentientTimeline/internal/blocks"
	"github.com/AaronLay10/SentientTimeline/internal/config"
	"github.com/AaronLay10/SentientTimeline/internal/events"
	"github.com/AaronLay10/SentientTimeline/internal/execsync"
	"github.com/AaronLay10/SentientTimeline/internal/export"
	"github.com/AaronLay10/SentientTimeline/internal/mqtt"
	"github.com/AaronLay10/SentientTimeline/internal/reorder"
	"github.com/AaronLay10/SentientTimeline/internal/storage/postgres"
	"github.com/AaronLay10/SentientTimeline/internal/timeline"
	"github.com/AaronLay10/SentientTimeline/internal/version"
)

// catalog reports a device as known when devices.yaml declares it or a
// controller has registered it.
type catalog struct {
	declared *config.DevicesConfig
	live     *mqtt.DeviceRegistry
}

func (c catalog) HasDevice(id string) bool {
	return c.declared.HasDevice(id) || c.live.HasDevice(id)
}

// SupportsCommand defers to the live registration; devices.yaml carries no
// signal lists.
func (c catalog) SupportsCommand(id, command string) (bool, bool) {
	return c.live.SupportsCommand(id, command)
}

var (
	_ timeline.DeviceCatalog  = catalog{}
	_ timeline.CommandCatalog = catalog{}
)

func main() {
	env, err := config.ParseEnv()
	if err != nil {
		log.Fatalf("failed to read environment: %v", err)
	}
	cfg, err := config.LoadServiceConfig(env.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load %s: %v", env.ConfigPath, err)
	}
	var devices *config.DevicesConfig
	if env.DevicesPath != "" {
		devices, err = config.LoadDevicesConfig(env.DevicesPath)
		if err != nil {
			log.Fatalf("failed to load %s: %v", env.DevicesPath, err)
		}
	}
	strategy, err := reorder.ParseStrategy(cfg.Reorder.Strategy)
	if err != nil {
		log.Fatalf("service.yaml: %v", err)
	}

	events.SetOutput(os.Stdout)
	api.InitMetrics()
	api.SetRoomName(cfg.Room.Name)
	if err := api.InitAuth(config.ResolveSecret); err != nil {
		log.Fatalf("failed to configure auth: %v", err)
	}
	if err := api.InitTLS(env.TLSCert, env.TLSKey); err != nil {
		log.Fatalf("failed to configure tls: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pg *postgres.Client
	if env.Postgres.Enabled() {
		pg, err = postgres.New(env.Postgres.DSN(), cfg.Room.ID)
		if err != nil {
			log.Printf("postgres: %v", err)
		} else {
			events.SetStore(pg)
			defer pg.Close()
		}
	}
	api.SetPostgresState(pg != nil, !env.Postgres.Enabled())

	client := mqtt.NewClient(env.MQTTURL, "sentient-timeline-"+cfg.Room.ID)
	api.SetMQTTState(client.ConnectWithRetry(), env.MQTTURL == "")
	defer client.Disconnect()
	go watchMQTT(ctx, client, env.MQTTURL == "")

	bus := execsync.NewBus(256)
	defer bus.Close()
	projector := execsync.NewProjector()
	// A nil client is a nil EventLog; Restore then has nothing to replay.
	var eventLog execsync.EventLog
	if pg != nil {
		eventLog = pg
	}
	applied, skipped, err := execsync.Restore(ctx, eventLog, projector,
		time.Now().Add(-cfg.RestoreWindow()), cfg.Execution.RestoreLimit)
	if err != nil {
		events.Emit("error", "system.error", "execution restore failed", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		log.Printf("execution: restored %d events (%d skipped)", applied, skipped)
	}
	api.SetExecutionRestored(err == nil)
	go projector.Run(ctx, bus.Subscribe(""))

	source := mqtt.NewExecutionSource(client, cfg.EventsTopic(), bus)
	if err := source.Start(); err != nil {
		log.Printf("mqtt: executor events unavailable: %v", err)
	}

	registry := mqtt.NewDeviceRegistry()
	if err := mqtt.NewRegistrationListener(registry, mqtt.SpecsFromConfig(devices)).
		Start(client, cfg.RegistrationTopic()); err != nil {
		log.Printf("mqtt: device registrations unavailable: %v", err)
	}

	root := cfg.ExportRoot()
	if env.ExportRoot != "" {
		root = env.ExportRoot
	}
	blockOpts := blocks.Options{
		MaxDepth:            cfg.Validation.MaxDepth,
		RequireWatchTimeout: cfg.Validation.RequireWatchTimeout,
	}

	server := &api.Server{
		Devices:   catalog{declared: devices, live: registry},
		Registry:  registry,
		Blocks:    blockOpts,
		Projector: projector,
		Bus:       bus,
		Commands:  mqtt.NewCommandPublisher(client, cfg.CommandTopic()),
	}
	if pg != nil {
		server.Exporter = &export.Exporter{
			Root:     root,
			Source:   &export.PostgresSource{Client: pg},
			Devices:  server.Devices,
			Blocks:   blockOpts,
			Parallel: cfg.Export.Parallel,
		}
		server.Reorderer = reorder.New(&reorder.SQLStore{DB: pg.DB(), Dialect: reorder.Postgres}, strategy)
		server.Puzzles = pg
		server.History = pg
	}

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "timeline service starting", map[string]interface{}{
		"service":  "api",
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
		"room_id":  cfg.Room.ID,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(cfg.UIPort())
	}()

	select {
	case <-ctx.Done():
		events.Emit("info", "system.shutdown", "signal received", map[string]interface{}{
			"service": "api",
		})
	case err := <-errCh:
		events.Emit("error", "system.error", "api server stopped", map[string]interface{}{
			"error": err.Error(),
		})
		log.Fatalf("api server failed: %v", err)
	}
}

// watchMQTT keeps the readiness check current across broker reconnects.
func watchMQTT(ctx context.Context, client *mqtt.Client, optional bool) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			api.SetMQTTState(client.IsConnected(), optional)
		}
	}
}
