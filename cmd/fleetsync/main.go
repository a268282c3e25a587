// fleetsync - realtime device and value registry
//
// This is the main entry point for the fleetsync server. fleetsync keeps
// an authoritative in-memory registry of devices and their typed values,
// serves it over a WebSocket message protocol, and persists snapshots on
// a debounced heartbeat. Device firmware and UI dashboards share the
// same socket; a key handshake tells them apart.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/graylab/fleetsync/internal/infrastructure/config"
	"github.com/graylab/fleetsync/internal/infrastructure/logging"
	"github.com/graylab/fleetsync/internal/infrastructure/mqtt"
	"github.com/graylab/fleetsync/internal/registry"
	"github.com/graylab/fleetsync/internal/server"
	"github.com/graylab/fleetsync/internal/storage"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting fleetsync", "version", version, "commit", commit)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the snapshot store
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		log.Info("closing store")
		if closeErr := store.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()
	log.Info("store opened", "driver", cfg.Storage.Driver, "path", cfg.Storage.Path)

	// Initialise the registry from the last snapshot
	reg := registry.New()
	reg.SetLogger(log)

	snap, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	reg.Restore(snap.Devices, snap.Values)
	devices, values := reg.Counts()
	log.Info("registry initialised", "devices", devices, "values", values)

	// Start the persistence heartbeat; it takes a final snapshot on
	// shutdown before the store closes.
	flusher := storage.NewFlusher(store, reg, cfg.GetFlushInterval(), log)
	flushDone := make(chan struct{})
	go func() {
		defer close(flushDone)
		flusher.Run(ctx)
	}()

	// Connect the MQTT event relay (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT relay disabled")
	}

	// Start the WebSocket server
	srv, err := server.New(server.Deps{
		Config:   cfg.Server,
		Logger:   log,
		Registry: reg,
		MQTT:     mqttClient,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing server", "error", closeErr)
		}
	}()

	log.Info("fleetsync running", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	// Block until a shutdown signal arrives
	<-ctx.Done()
	log.Info("shutdown signal received")

	// Wait for the flusher's final save before the deferred store close.
	<-flushDone
	return nil
}

// openStore builds the snapshot store named by the config driver.
func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return storage.OpenSQLiteStore(ctx, cfg.Path)
	case "file", "":
		return storage.NewFileStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// getConfigPath returns the config file path from the environment or the
// default location.
func getConfigPath() string {
	if path := os.Getenv("FLEETSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
