// Gray Logic HASS - hub runtime gateway
//
// This is the main entry point for the hub runtime. It keeps a live mirror
// of every entity the hub reports, routes service calls to the hub, and
// republishes state to local consumers:
//   - HTTP API and WebSocket relay for local tools
//   - MQTT state mirror and command bridge
//   - SQLite snapshots and call audit for warm restarts
//   - InfluxDB state history
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-hass/internal/api"
	"github.com/nerrad567/gray-logic-hass/internal/hass"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-hass/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-hass/internal/recorder"
	"github.com/nerrad567/gray-logic-hass/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup wiring: each optional sink adds a branch
	log := logging.Default()
	log.Info("starting Gray Logic HASS",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"hub", cfg.Hass.BaseURL,
		"rest_mode", cfg.Hass.CallProxyAllowRest,
	)

	m := metrics.New()

	// SQLite: snapshots and call audit (optional)
	var db *database.DB
	if cfg.Database.Enabled {
		db, err = openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database ready", "path", db.Path())
	}

	// MQTT: state mirror and command bridge (optional)
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
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// InfluxDB: state and call history (optional)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Hub runtime
	opts := hass.Options{Config: cfg.Hass, Metrics: m, Logger: log}
	if db != nil {
		opts.Audit = db
	}
	if influxClient != nil {
		opts.History = influxClient
	}
	rt := hass.New(opts)
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			log.Error("error closing hub runtime", "error", closeErr)
		}
	}()

	if db != nil {
		rt.Lifecycle().OnBootstrap("snapshot_restore", func(ctx context.Context) error {
			n, restoreErr := recorder.Restore(ctx, db, rt.Cache(), log)
			if restoreErr != nil {
				log.Warn("snapshot restore failed, starting cold", "error", restoreErr)
				return nil
			}
			log.Info("entity snapshots restored", "count", n)
			return nil
		})
	}

	rec := recorder.New(recorderDeps(rt, db, mqttClient, stateHistorySink(cfg.InfluxDB, influxClient), log))

	if mqttClient != nil {
		topic := mqtt.Topics{}.AllCommands()
		if subErr := mqttClient.Subscribe(topic, byte(cfg.MQTT.QoS), rt.HandleCommand); subErr != nil {
			return fmt.Errorf("subscribing to commands: %w", subErr)
		}
		log.Info("MQTT command bridge subscribed", "topic", topic)
	}

	// HTTP API (optional)
	if cfg.API.Enabled {
		apiDeps := api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log,
			Entities: rt.Cache(),
			Runtime:  rt,
			Catalog:  rt.Catalog(),
			Socket:   rt.Socket(),
			Metrics:  m.Handler(),
			Version:  version,
		}
		if db != nil {
			apiDeps.Calls = db
		}
		server, apiErr := api.New(apiDeps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr := server.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("starting hub runtime: %w", err)
	}
	log.Info("hub runtime ready",
		"entities", rt.Cache().Len(),
		"transport", rt.Transport(),
	)

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Run(gctx) })
	g.Go(func() error { return rec.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("runtime stopped: %w", err)
	}

	if rec.Dropped() > 0 {
		log.Warn("recorder dropped updates", "count", rec.Dropped())
	}
	log.Info("Gray Logic HASS stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase opens SQLite and applies the embedded migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// stateHistorySink returns client only when entity state export is enabled.
func stateHistorySink(cfg config.InfluxDBConfig, client *influxdb.Client) *influxdb.Client {
	if !cfg.EntityStates {
		return nil
	}
	return client
}

// recorderDeps leaves disabled sinks as untyped nil so the recorder skips them.
// influxClient is nil unless entity state export is switched on.
func recorderDeps(rt *hass.Runtime, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) recorder.Deps {
	deps := recorder.Deps{Source: rt.Cache(), Logger: log}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	if influxClient != nil {
		deps.History = influxClient
	}
	if db != nil {
		deps.Store = db
	}
	return deps
}

// healthCheck verifies every enabled infrastructure connection.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
