// tickerbox watches a social stream for a set of topics and shows matching
// posts on a 16x2 character LCD, lighting an indicator for each new post.
//
// Configuration is read from configs/config.yaml, or from the path in
// TICKERBOX_CONFIG.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nerrad567/tickerbox/internal/api"
	"github.com/nerrad567/tickerbox/internal/dispatcher"
	"github.com/nerrad567/tickerbox/internal/gpio"
	"github.com/nerrad567/tickerbox/internal/infrastructure/config"
	"github.com/nerrad567/tickerbox/internal/infrastructure/database"
	"github.com/nerrad567/tickerbox/internal/infrastructure/influxdb"
	"github.com/nerrad567/tickerbox/internal/infrastructure/logging"
	"github.com/nerrad567/tickerbox/internal/infrastructure/mqtt"
	"github.com/nerrad567/tickerbox/internal/lcd"
	"github.com/nerrad567/tickerbox/internal/queue"
	"github.com/nerrad567/tickerbox/internal/snapshot"
	"github.com/nerrad567/tickerbox/internal/stream"
	"github.com/nerrad567/tickerbox/internal/stream/mastodon"
	"github.com/nerrad567/tickerbox/internal/stream/mqttsource"
	"github.com/nerrad567/tickerbox/internal/supervisor"
	"github.com/nerrad567/tickerbox/internal/watcher"
	"github.com/nerrad567/tickerbox/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// snapshotRetention bounds the follower history kept on disk.
	snapshotRetention = 7 * 24 * time.Hour

	startupCheckTimeout = 10 * time.Second
	apiShutdownTimeout  = 5 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// telemetry is every recorder interface the pipeline accepts.
// *influxdb.Client satisfies it.
type telemetry interface {
	watcher.Recorder
	dispatcher.Recorder
	supervisor.Recorder
}

// run wires the pipeline and blocks until ctx ends or the display hardware
// fails. Deferred closes run in reverse order of setup.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting tickerbox", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, closeLog, err := logging.Open(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("opening log output: %w", err)
	}
	defer closeLog() //nolint:errcheck // nothing left to report to
	log.Info("configuration loaded", "path", configPath, "backend", cfg.Stream.Backend, "topics", cfg.Pipeline.Topics)

	// Follower history (optional)
	var (
		db    *database.DB
		snaps watcher.Snapshots
	)
	if cfg.Database.Enabled {
		db, err = openDatabase(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		snaps = snapshot.NewSQLiteRepository(db.DB)
	}

	// MQTT (optional; required by the mqtt stream backend)
	var mqttClient *mqtt.Client
	var health supervisor.HealthPublisher
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
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		health = mqttHealth{client: mqttClient}
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	// InfluxDB (optional)
	var rec telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
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
		rec = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	source, err := buildSource(cfg, mqttClient)
	if err != nil {
		return err
	}

	// Hardware
	bank, err := gpio.NewPeriphBank()
	if err != nil {
		return fmt.Errorf("initialising GPIO: %w", err)
	}
	display, err := lcd.New(bank, lcd.ConfigFrom(cfg.Display))
	if err != nil {
		return fmt.Errorf("initialising display: %w", err)
	}
	indicator, err := gpio.NewLine(bank, cfg.Indicator.Pin)
	if err != nil {
		return fmt.Errorf("initialising indicator: %w", err)
	}
	if err := display.Show(supervisor.FillerTitle, cfg.Pipeline.Topics[0]); err != nil {
		return fmt.Errorf("writing startup screen: %w", err)
	}
	defer func() {
		if err := display.Show("tickerbox", "stopped"); err != nil {
			log.Warn("writing shutdown screen", "error", err)
		}
		if err := indicator.Set(false); err != nil {
			log.Warn("lowering indicator", "error", err)
		}
	}()
	log.Info("display initialised", "width", display.Width())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	fatal := make(chan error, 1)

	q := queue.New()
	var sup *supervisor.Supervisor
	var current atomic.Pointer[watcher.Watcher]

	watcherOpts := watcher.Options{
		Source:    source,
		Queue:     q,
		Topics:    func() []string { return sup.Topics() },
		Cooldown:  cfg.Pipeline.RateLimitCooldown,
		Account:   cfg.Pipeline.StatusAccount,
		Snapshots: snaps,
		Recorder:  rec,
		Logger:    log.Component("watcher"),
	}

	sup = supervisor.New(supervisor.Options{
		Queue: q,
		NewWatcher: func() supervisor.Runner {
			w := watcher.New(watcherOpts)
			current.Store(w)
			return w
		},
		NewDispatcher: func() supervisor.Runner {
			return dispatcher.New(dispatcher.Options{
				Queue:     q,
				Display:   display,
				Indicator: indicator,
				AlertHold: cfg.Indicator.AlertHold,
				Settle:    cfg.Indicator.Settle,
				Recorder:  rec,
				Logger:    log.Component("dispatcher"),
				OnFatal: func(err error) {
					select {
					case fatal <- err:
					default:
					}
					cancel()
				},
			})
		},
		Status:       watcher.New(watcherOpts),
		Topics:       cfg.Pipeline.Topics,
		PollInterval: cfg.Pipeline.PollInterval,
		Recorder:     rec,
		Health:       health,
		Logger:       log.Component("supervisor"),
	})

	// Status API (optional)
	if cfg.API.Enabled {
		srv := api.NewServer(api.Options{
			Host:   cfg.API.Host,
			Port:   cfg.API.Port,
			Status: pipelineStatus{queue: q, supervisor: sup, watcher: &current},
			Logger: log.Component("api"),
		})
		if err := srv.Start(runCtx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			stopCtx, stop := context.WithTimeout(context.Background(), apiShutdownTimeout)
			defer stop()
			if err := srv.Stop(stopCtx); err != nil {
				log.Error("error stopping API server", "error", err)
			}
		}()
	}

	// Live topic reload
	go func() {
		err := config.Watch(runCtx, configPath, log.Component("config"), func(c *config.Config) {
			if !reloadTopics(sup, c.Pipeline.Topics, log) {
				log.Info("config changed; settings other than pipeline.topics apply after a restart")
			}
		})
		if err != nil {
			log.Warn("config watcher stopped", "error", err)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	if err := sup.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	select {
	case err := <-fatal:
		log.Error("stopping on display hardware failure", "error", err)
		return fmt.Errorf("display hardware failure: %w", err)
	default:
	}
	log.Info("tickerbox stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TICKERBOX_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TICKERBOX_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase opens and migrates the snapshot store, then drops history
// older than snapshotRetention.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	repo := snapshot.NewSQLiteRepository(db.DB)
	pruned, err := repo.Prune(ctx, time.Now().Add(-snapshotRetention))
	if err != nil {
		log.Warn("pruning follower history", "error", err)
	}
	log.Info("database ready", "path", db.Path(), "pruned_snapshots", pruned)
	return db, nil
}

// buildSource returns the stream.Source selected by stream.backend.
func buildSource(cfg *config.Config, mqttClient *mqtt.Client) (stream.Source, error) {
	switch cfg.Stream.Backend {
	case config.BackendMastodon:
		src, err := mastodon.New(mastodon.Config{
			Server:      cfg.Stream.Mastodon.Server,
			AccessToken: cfg.Stream.Mastodon.AccessToken,
			ReadTimeout: cfg.Stream.Mastodon.ReadTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring mastodon source: %w", err)
		}
		return src, nil
	case config.BackendMQTT:
		if mqttClient == nil {
			return nil, errors.New("mqtt stream backend needs mqtt.enabled")
		}
		return mqttsource.New(mqttClient, mqttsource.Options{
			Prefix: cfg.Stream.MQTT.TopicPrefix,
			QoS:    byte(cfg.MQTT.QoS), //nolint:gosec // validated 0..2
		}), nil
	}
	return nil, fmt.Errorf("unknown stream backend %q", cfg.Stream.Backend)
}

// topicSet is the part of the supervisor a topic reload touches.
type topicSet interface {
	Topics() []string
	SetTopics(topics []string)
	Restart(component string) error
}

// reloadTopics applies a changed topic list and restarts the watcher so
// the new topics are streamed. It reports whether anything changed.
func reloadTopics(s topicSet, topics []string, log *logging.Logger) bool {
	if slices.Equal(s.Topics(), topics) {
		return false
	}
	s.SetTopics(topics)
	if err := s.Restart(supervisor.Watcher); err != nil {
		log.Error("restarting watcher after topic change", "error", err)
	}
	log.Info("tracked topics changed", "topics", topics)
	return true
}

// healthCheck verifies the optional infrastructure is usable before the
// pipeline starts. Either argument may be nil.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

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
	return nil
}
