package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Stream backend identifiers.
const (
	BackendMastodon = "mastodon"
	BackendMQTT     = "mqtt"
)

// maxDisplayWidth bounds display.width to the widest HD44780-class module (40 columns).
const maxDisplayWidth = 40

// Config is the root configuration structure for tickerbox.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Display   DisplayConfig   `yaml:"display"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Stream    StreamConfig    `yaml:"stream"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DisplayConfig describes the character display and the bus it hangs off.
type DisplayConfig struct {
	// Width is the number of character columns per row.
	Width int `yaml:"width"`

	// LineAddresses are the DDRAM base addresses of each row, as command bytes.
	// Default: [0x80, 0xC0]
	LineAddresses []int `yaml:"line_addresses"`

	Pins   DisplayPins   `yaml:"pins"`
	Timing DisplayTiming `yaml:"timing"`
}

// DisplayPins names the GPIO lines of the 4-bit bus.
// Data0..Data3 are wired to the controller's D4..D7 inputs.
type DisplayPins struct {
	Data0          string `yaml:"data0"`
	Data1          string `yaml:"data1"`
	Data2          string `yaml:"data2"`
	Data3          string `yaml:"data3"`
	RegisterSelect string `yaml:"register_select"`
	EnableStrobe   string `yaml:"enable_strobe"`
}

// DisplayTiming holds the bus timing margins for the enable strobe.
type DisplayTiming struct {
	SetupDelay time.Duration `yaml:"setup_delay"`
	PulseWidth time.Duration `yaml:"pulse_width"`
	HoldDelay  time.Duration `yaml:"hold_delay"`
}

// IndicatorConfig describes the alert light.
type IndicatorConfig struct {
	Pin string `yaml:"pin"`

	// AlertHold is how long the light stays on after an alerting event is shown.
	AlertHold time.Duration `yaml:"alert_hold"`

	// Settle is how long a non-alerting event stays on screen before the next one.
	Settle time.Duration `yaml:"settle"`
}

// PipelineConfig contains watcher/supervisor settings.
type PipelineConfig struct {
	Topics            []string      `yaml:"topics"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	RateLimitCooldown time.Duration `yaml:"rate_limit_cooldown"`

	// StatusAccount is the account whose metrics fill the idle display.
	// If empty, no status lookup is made.
	StatusAccount string `yaml:"status_account"`
}

// StreamConfig selects and configures the external event source.
type StreamConfig struct {
	Backend  string               `yaml:"backend"`
	Mastodon MastodonStreamConfig `yaml:"mastodon"`
	MQTT     MQTTStreamConfig     `yaml:"mqtt"`
}

// MastodonStreamConfig contains settings for the Mastodon streaming API.
type MastodonStreamConfig struct {
	// Server is the instance base URL, e.g. "https://mastodon.social".
	Server      string        `yaml:"server"`
	AccessToken string        `yaml:"access_token"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// MQTTStreamConfig contains settings for the MQTT-fed stream backend.
type MQTTStreamConfig struct {
	TopicPrefix string `yaml:"topic_prefix"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TICKERBOX_SECTION_KEY
// For example: TICKERBOX_DATABASE_PATH, TICKERBOX_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a validated Config from raw YAML, applying defaults and
// environment overrides exactly as Load does.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the pin-out and timing of the reference build.
func defaultConfig() *Config {
	return &Config{
		Display: DisplayConfig{
			Width:         16,
			LineAddresses: []int{0x80, 0xC0},
			Pins: DisplayPins{
				Data0:          "GPIO25",
				Data1:          "GPIO24",
				Data2:          "GPIO23",
				Data3:          "GPIO18",
				RegisterSelect: "GPIO7",
				EnableStrobe:   "GPIO8",
			},
			Timing: DisplayTiming{
				SetupDelay: 50 * time.Microsecond,
				PulseWidth: 50 * time.Microsecond,
				HoldDelay:  50 * time.Microsecond,
			},
		},
		Indicator: IndicatorConfig{
			Pin:       "GPIO4",
			AlertHold: 10 * time.Second,
			Settle:    4 * time.Second,
		},
		Pipeline: PipelineConfig{
			PollInterval:      10 * time.Second,
			RateLimitCooldown: 60 * time.Second,
		},
		Stream: StreamConfig{
			Backend: BackendMastodon,
			Mastodon: MastodonStreamConfig{
				ReadTimeout: 90 * time.Second,
			},
			MQTT: MQTTStreamConfig{
				TopicPrefix: "tickerbox/stream",
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tickerbox",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/tickerbox.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TICKERBOX_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Stream
	if v := os.Getenv("TICKERBOX_MASTODON_TOKEN"); v != "" {
		cfg.Stream.Mastodon.AccessToken = v
	}
	if v := os.Getenv("TICKERBOX_TOPICS"); v != "" {
		cfg.Pipeline.Topics = splitList(v)
	}

	// MQTT
	if v := os.Getenv("TICKERBOX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TICKERBOX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TICKERBOX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("TICKERBOX_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("TICKERBOX_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// splitList splits a comma-separated list, dropping blank entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Display validation
	if c.Display.Width < 1 || c.Display.Width > maxDisplayWidth {
		errs = append(errs, fmt.Sprintf("display.width must be between 1 and %d", maxDisplayWidth))
	}
	if len(c.Display.LineAddresses) != 2 {
		errs = append(errs, "display.line_addresses must list exactly two rows")
	}
	for _, addr := range c.Display.LineAddresses {
		if addr < 0x80 || addr > 0xFF {
			errs = append(errs, fmt.Sprintf("display.line_addresses entry %#x is not a set-DDRAM command (0x80-0xFF)", addr))
		}
	}
	errs = append(errs, c.validatePins()...)
	if c.Display.Timing.SetupDelay <= 0 || c.Display.Timing.PulseWidth <= 0 || c.Display.Timing.HoldDelay <= 0 {
		errs = append(errs, "display.timing delays must be positive")
	}

	// Indicator validation
	if c.Indicator.AlertHold <= 0 {
		errs = append(errs, "indicator.alert_hold must be positive")
	}
	if c.Indicator.Settle <= 0 {
		errs = append(errs, "indicator.settle must be positive")
	}

	// Pipeline validation
	if len(c.Pipeline.Topics) == 0 {
		errs = append(errs, "pipeline.topics must contain at least one topic")
	}
	if c.Pipeline.PollInterval <= 0 {
		errs = append(errs, "pipeline.poll_interval must be positive")
	}
	if c.Pipeline.RateLimitCooldown <= 0 {
		errs = append(errs, "pipeline.rate_limit_cooldown must be positive")
	}

	// Stream validation
	switch c.Stream.Backend {
	case BackendMastodon:
		if c.Stream.Mastodon.Server == "" {
			errs = append(errs, "stream.mastodon.server is required for the mastodon backend")
		}
	case BackendMQTT:
		if !c.MQTT.Enabled {
			errs = append(errs, "mqtt.enabled must be true for the mqtt stream backend")
		}
		if c.Stream.MQTT.TopicPrefix == "" {
			errs = append(errs, "stream.mqtt.topic_prefix is required for the mqtt backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("stream.backend %q is not one of %q, %q", c.Stream.Backend, BackendMastodon, BackendMQTT))
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validatePins checks that every bus and indicator pin is named, and named once.
func (c *Config) validatePins() []string {
	var errs []string
	pins := []struct {
		key  string
		name string
	}{
		{"display.pins.data0", c.Display.Pins.Data0},
		{"display.pins.data1", c.Display.Pins.Data1},
		{"display.pins.data2", c.Display.Pins.Data2},
		{"display.pins.data3", c.Display.Pins.Data3},
		{"display.pins.register_select", c.Display.Pins.RegisterSelect},
		{"display.pins.enable_strobe", c.Display.Pins.EnableStrobe},
		{"indicator.pin", c.Indicator.Pin},
	}

	seen := make(map[string]string, len(pins))
	for _, p := range pins {
		if p.name == "" {
			errs = append(errs, p.key+" is required")
			continue
		}
		if other, dup := seen[p.name]; dup {
			errs = append(errs, fmt.Sprintf("%s reuses pin %s already assigned to %s", p.key, p.name, other))
			continue
		}
		seen[p.name] = p.key
	}
	return errs
}
