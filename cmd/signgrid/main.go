// SignGrid Core - LED Sign Fleet Engine
//
// This is the main entry point for the SignGrid core service. It speaks
// the sign wire protocol over two transports (direct TCP and per-device
// MQTT topics), tracks one session per device, and keeps each sign's
// message slots and liveness accounted for.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/signgrid/signgrid-core/migrations"

	"github.com/signgrid/signgrid-core/internal/engine"
	"github.com/signgrid/signgrid-core/internal/infrastructure/config"
	"github.com/signgrid/signgrid-core/internal/infrastructure/database"
	"github.com/signgrid/signgrid-core/internal/infrastructure/influxdb"
	"github.com/signgrid/signgrid-core/internal/infrastructure/logging"
	"github.com/signgrid/signgrid-core/internal/infrastructure/mqtt"
	"github.com/signgrid/signgrid-core/internal/sign"
	"github.com/signgrid/signgrid-core/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting SignGrid core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
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

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Provisioning repository
	signRepo := sign.NewSQLiteRepository(db.DB)
	provisioned, err := signRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading provisioned signs: %w", err)
	}
	log.Info("provisioning loaded", "signs", len(provisioned))

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
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

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Fleet engine
	eng := engine.New(cfg, signRepo)
	eng.SetLogger(log)
	eng.SetTelemetry(influxClient)
	defer func() {
		log.Info("closing sessions")
		eng.Close()
	}()

	// MQTT transport
	mqttTransport := transport.NewMQTTAdapter(mqttClient, cfg.MQTT.Topics.PayloadEncoding)
	mqttTransport.SetLogger(log)
	if startErr := mqttTransport.Start(); startErr != nil {
		return fmt.Errorf("starting MQTT transport: %w", startErr)
	}
	defer func() {
		log.Info("stopping MQTT transport")
		if closeErr := mqttTransport.Close(); closeErr != nil {
			log.Error("error closing MQTT transport", "error", closeErr)
		}
	}()
	eng.SetMQTTConnector(mqttTransport)
	log.Info("MQTT transport started", "encoding", cfg.MQTT.Topics.PayloadEncoding)

	// TCP transport
	tcpServer := transport.NewTCPServer(cfg.TCP, cfg.GetSendTimeout(), eng.BuildSession)
	tcpServer.SetLogger(log)
	if startErr := tcpServer.Start(); startErr != nil {
		return fmt.Errorf("starting TCP transport: %w", startErr)
	}
	defer func() {
		log.Info("stopping TCP transport")
		if closeErr := tcpServer.Close(); closeErr != nil {
			log.Error("error closing TCP transport", "error", closeErr)
		}
	}()
	log.Info("TCP transport listening", "host", cfg.TCP.Host, "port", cfg.TCP.Port)

	// Bring simulated signs online so they answer fleet queries
	for _, record := range provisioned {
		if !record.Simulated {
			continue
		}
		if connErr := eng.Connect(ctx, record.DeviceID); connErr != nil {
			log.Warn("connecting simulated sign failed",
				"device_id", record.DeviceID, "error", connErr)
		}
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. TCP transport
	// 2. MQTT transport
	// 3. Engine sessions
	// 4. InfluxDB (if enabled)
	// 5. MQTT
	// 6. Database

	log.Info("SignGrid core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SIGNGRID_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SIGNGRID_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
