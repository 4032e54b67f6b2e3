package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration.
type Config struct {
	HTTP      HTTPConfig     `yaml:"http"`
	Database  DatabaseConfig `yaml:"database"`
	Timezone  string         `yaml:"timezone"`
	Log       LogConfig      `yaml:"log"`
	Webhook   WebhookConfig  `yaml:"webhook"`
	NATS      NATSConfig     `yaml:"nats"`
	Realtime  RealtimeConfig `yaml:"realtime"`
	SeedFile  string         `yaml:"seed_file"`
	MetricsDB bool           `yaml:"metrics_db"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures Postgres.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// WebhookConfig configures the chat notification flow. An empty URL
// disables it.
type WebhookConfig struct {
	URL          string        `yaml:"url"`
	Format       string        `yaml:"format"`
	TeamID       string        `yaml:"team_id"`
	ChannelID    string        `yaml:"channel_id"`
	Template     string        `yaml:"template"`
	Timeout      time.Duration `yaml:"timeout"`
	QueueSize    int           `yaml:"queue_size"`
	Workers      int           `yaml:"workers"`
	DedupeWindow time.Duration `yaml:"dedupe_window"`
}

// NATSConfig configures the station event sink. An empty URL disables it.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	ClientName    string        `yaml:"client_name"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	MaxReconnects int           `yaml:"max_reconnects"`
}

// RealtimeConfig sizes per-session outbound queues.
type RealtimeConfig struct {
	ClientBuffer int           `yaml:"client_buffer"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

// Webhook payload formats.
const (
	WebhookFormatFlow = "flow"
	WebhookFormatText = "text"
)

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":5000",
			CORSOrigins:     []string{"*"},
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Timezone: "UTC",
		Log:      LogConfig{Level: "info"},
		Webhook: WebhookConfig{
			Format:    WebhookFormatFlow,
			Timeout:   5 * time.Second,
			QueueSize: 256,
			Workers:   2,
		},
		NATS: NATSConfig{
			SubjectPrefix: "andon.station",
			ClientName:    "andon-board",
			ReconnectWait: 2 * time.Second,
			MaxReconnects: -1,
		},
		Realtime: RealtimeConfig{
			ClientBuffer: 64,
			PingInterval: 30 * time.Second,
		},
	}
}

// Load reads an optional YAML file and applies environment overrides.
// path falls back to ANDON_CONFIG.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("ANDON_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Database.URL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.Database.URL))
	cfg.HTTP.Addr = getenvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	if origins := splitCSV(os.Getenv("CORS_ORIGINS")); len(origins) > 0 {
		cfg.HTTP.CORSOrigins = origins
	}
	cfg.Timezone = getenvDefault("ANDON_TIMEZONE", cfg.Timezone)
	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.JSON = getenvBool("LOG_JSON", cfg.Log.JSON)
	cfg.Database.AutoMigrate = getenvBool("AUTO_MIGRATE", cfg.Database.AutoMigrate)
	cfg.Webhook.URL = getenvDefault("WEBHOOK_URL", cfg.Webhook.URL)
	cfg.Webhook.Format = getenvDefault("WEBHOOK_FORMAT", cfg.Webhook.Format)
	cfg.Webhook.TeamID = getenvDefault("WEBHOOK_TEAM_ID", cfg.Webhook.TeamID)
	cfg.Webhook.ChannelID = getenvDefault("WEBHOOK_CHANNEL_ID", cfg.Webhook.ChannelID)
	cfg.Webhook.Timeout = getenvDuration("WEBHOOK_TIMEOUT", cfg.Webhook.Timeout)
	cfg.NATS.URL = getenvDefault("NATS_URL", cfg.NATS.URL)
	cfg.SeedFile = getenvDefault("ANDON_SEED_FILE", cfg.SeedFile)
}

// Validate checks required settings.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("config: DATABASE_URL or PG_DSN is required")
	}
	if c.HTTP.Addr == "" {
		return errors.New("config: http addr is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Webhook.Format {
	case WebhookFormatFlow, WebhookFormatText:
	default:
		return fmt.Errorf("config: unknown webhook format %q", c.Webhook.Format)
	}
	if c.Webhook.URL != "" && c.Webhook.Timeout <= 0 {
		return errors.New("config: webhook timeout must be positive")
	}
	return nil
}

// Location loads the factory timezone.
func (c Config) Location() (*time.Location, error) {
	name := c.Timezone
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", name, err)
	}
	return loc, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
