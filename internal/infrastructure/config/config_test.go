package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
display:
  width: 20
  timing:
    setup_delay: 40us
    pulse_width: 1ms
    hold_delay: 40us
indicator:
  alert_hold: 5s
pipeline:
  topics: ["golang", "raspberrypi"]
  poll_interval: 15s
  status_account: "gopher"
stream:
  backend: "mastodon"
  mastodon:
    server: "https://mastodon.example"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// validConfig returns a config that passes validation so each case can break one thing.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Pipeline.Topics = []string{"golang"}
	cfg.Stream.Mastodon.Server = "https://mastodon.example"
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Display.Width != 20 {
		t.Errorf("Display.Width = %d, want 20", cfg.Display.Width)
	}
	if cfg.Display.Timing.PulseWidth != time.Millisecond {
		t.Errorf("Display.Timing.PulseWidth = %v, want 1ms", cfg.Display.Timing.PulseWidth)
	}
	if cfg.Display.Timing.SetupDelay != 40*time.Microsecond {
		t.Errorf("Display.Timing.SetupDelay = %v, want 40us", cfg.Display.Timing.SetupDelay)
	}
	if cfg.Indicator.AlertHold != 5*time.Second {
		t.Errorf("Indicator.AlertHold = %v, want 5s", cfg.Indicator.AlertHold)
	}
	// Untouched keys keep their defaults.
	if cfg.Indicator.Settle != 4*time.Second {
		t.Errorf("Indicator.Settle = %v, want 4s", cfg.Indicator.Settle)
	}
	if cfg.Display.Pins.EnableStrobe != "GPIO8" {
		t.Errorf("Display.Pins.EnableStrobe = %q, want %q", cfg.Display.Pins.EnableStrobe, "GPIO8")
	}
	if got := strings.Join(cfg.Pipeline.Topics, ","); got != "golang,raspberrypi" {
		t.Errorf("Pipeline.Topics = %q, want %q", got, "golang,raspberrypi")
	}
	if cfg.Pipeline.StatusAccount != "gopher" {
		t.Errorf("Pipeline.StatusAccount = %q, want %q", cfg.Pipeline.StatusAccount, "gopher")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
pipeline:
  topics: []
stream:
  mastodon:
    server: "https://mastodon.example"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for empty topics, got nil")
	}
	if !strings.Contains(err.Error(), "pipeline.topics") {
		t.Errorf("Load() error = %v, want mention of pipeline.topics", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "zero width",
			mutate:  func(c *Config) { c.Display.Width = 0 },
			wantErr: "display.width",
		},
		{
			name:    "width too large",
			mutate:  func(c *Config) { c.Display.Width = 41 },
			wantErr: "display.width",
		},
		{
			name:    "line address not a command",
			mutate:  func(c *Config) { c.Display.LineAddresses = []int{0x40} },
			wantErr: "display.line_addresses",
		},
		{
			name:    "missing pin",
			mutate:  func(c *Config) { c.Display.Pins.Data2 = "" },
			wantErr: "display.pins.data2 is required",
		},
		{
			name:    "indicator shares a bus pin",
			mutate:  func(c *Config) { c.Indicator.Pin = c.Display.Pins.EnableStrobe },
			wantErr: "indicator.pin reuses pin",
		},
		{
			name:    "zero pulse width",
			mutate:  func(c *Config) { c.Display.Timing.PulseWidth = 0 },
			wantErr: "display.timing",
		},
		{
			name:    "zero alert hold",
			mutate:  func(c *Config) { c.Indicator.AlertHold = 0 },
			wantErr: "indicator.alert_hold",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Pipeline.PollInterval = 0 },
			wantErr: "pipeline.poll_interval",
		},
		{
			name:    "zero cooldown",
			mutate:  func(c *Config) { c.Pipeline.RateLimitCooldown = 0 },
			wantErr: "pipeline.rate_limit_cooldown",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Stream.Backend = "carrier-pigeon" },
			wantErr: "stream.backend",
		},
		{
			name:    "mastodon without server",
			mutate:  func(c *Config) { c.Stream.Mastodon.Server = "" },
			wantErr: "stream.mastodon.server",
		},
		{
			name:    "mqtt backend without mqtt",
			mutate:  func(c *Config) { c.Stream.Backend = BackendMQTT },
			wantErr: "mqtt.enabled",
		},
		{
			name: "mqtt backend with mqtt",
			mutate: func(c *Config) {
				c.Stream.Backend = BackendMQTT
				c.MQTT.Enabled = true
			},
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name: "enabled api with bad port",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 0
			},
			wantErr: "api.port",
		},
		{
			name: "enabled database without path",
			mutate: func(c *Config) {
				c.Database.Enabled = true
				c.Database.Path = ""
			},
			wantErr: "database.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("TICKERBOX_MASTODON_TOKEN", "token-123")
	t.Setenv("TICKERBOX_TOPICS", "golang, ,tinygo")
	t.Setenv("TICKERBOX_MQTT_HOST", "mqtt.example.com")
	t.Setenv("TICKERBOX_MQTT_USERNAME", "testuser")
	t.Setenv("TICKERBOX_MQTT_PASSWORD", "testpass")
	t.Setenv("TICKERBOX_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("TICKERBOX_DATABASE_PATH", "/custom/path.db")

	applyEnvOverrides(cfg)

	if cfg.Stream.Mastodon.AccessToken != "token-123" {
		t.Errorf("Stream.Mastodon.AccessToken = %q, want %q", cfg.Stream.Mastodon.AccessToken, "token-123")
	}
	if got := strings.Join(cfg.Pipeline.Topics, ","); got != "golang,tinygo" {
		t.Errorf("Pipeline.Topics = %q, want %q", got, "golang,tinygo")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Display.Width != 16 {
		t.Errorf("defaultConfig Display.Width = %d, want 16", cfg.Display.Width)
	}
	if len(cfg.Display.LineAddresses) != 2 || cfg.Display.LineAddresses[0] != 0x80 || cfg.Display.LineAddresses[1] != 0xC0 {
		t.Errorf("defaultConfig Display.LineAddresses = %#v, want [0x80 0xC0]", cfg.Display.LineAddresses)
	}
	if cfg.Display.Timing.PulseWidth != 50*time.Microsecond {
		t.Errorf("defaultConfig PulseWidth = %v, want 50us", cfg.Display.Timing.PulseWidth)
	}
	if cfg.Pipeline.RateLimitCooldown != time.Minute {
		t.Errorf("defaultConfig RateLimitCooldown = %v, want 1m", cfg.Pipeline.RateLimitCooldown)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}

type nopWatchLogger struct{}

func (nopWatchLogger) Debug(string, ...any) {}
func (nopWatchLogger) Warn(string, ...any)  {}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, validYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nopWatchLogger{}, func(cfg *Config) { reloaded <- cfg })
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	updated := strings.Replace(validYAML, `["golang", "raspberrypi"]`, `["tinygo"]`, 1)
	if err := os.WriteFile(path, []byte(updated), 0600); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if got := strings.Join(cfg.Pipeline.Topics, ","); got != "tinygo" {
			t.Errorf("reloaded Pipeline.Topics = %q, want %q", got, "tinygo")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not deliver the reloaded config")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}

func TestWatch_IgnoresInvalidReload(t *testing.T) {
	path := writeConfig(t, validYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	go Watch(ctx, path, nopWatchLogger{}, func(cfg *Config) { reloaded <- cfg }) //nolint:errcheck // Result checked via channel

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("pipeline:\n  topics: []\n"), 0600); err != nil {
		t.Fatalf("rewriting config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		t.Errorf("Watch() delivered invalid config with topics %v", cfg.Pipeline.Topics)
	case <-time.After(500 * time.Millisecond):
	}
}
