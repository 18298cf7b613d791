// Package config loads and validates agent config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Event sink kinds accepted by EVENT_SINK.
const (
	SinkPostgres = "postgres"
	SinkKafka    = "kafka"
	SinkOTel     = "otel"
	SinkSpool    = "spool"
	SinkMemory   = "memory"
	SinkNone     = "none"
)

// Config holds agent configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the local event API listens on.
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "json" or "console".
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// SettingsDatabaseURL is the Postgres DSN of the settings store. Empty means the store is absent.
	SettingsDatabaseURL string `mapstructure:"SETTINGS_DATABASE_URL"`
	// EventsDatabaseURL is the Postgres DSN of the event sink when EVENT_SINK=postgres.
	EventsDatabaseURL string `mapstructure:"EVENTS_DATABASE_URL"`
	// EventSink selects the event sink implementation.
	EventSink string `mapstructure:"EVENT_SINK"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// EventsKafkaTopic is the topic events are published to and consumed from.
	EventsKafkaTopic string `mapstructure:"EVENTS_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group of the Loki forwarding worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Loki base URL the worker pushes to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// MetricsAddr is where the worker serves /metrics.
	MetricsAddr string `mapstructure:"METRICS_ADDR"`

	// SpoolDir is the directory of the CBOR spool sink. The sink is absent while it does not exist.
	SpoolDir string `mapstructure:"SPOOL_DIR"`

	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// DeviceSettingsAddr is the gRPC address of the device-settings capability. Empty means never reachable.
	DeviceSettingsAddr string `mapstructure:"DEVICE_SETTINGS_ADDR"`
	// DeviceSettingsProbeTimeout bounds one reachability probe (e.g. "2s").
	DeviceSettingsProbeTimeout string `mapstructure:"DEVICE_SETTINGS_PROBE_TIMEOUT"`

	// Detached marks a detached or virtual host; the serial is then reported as unknown.
	Detached bool `mapstructure:"DETACHED"`

	// AppName, AppVersionName and AppVersionCode override the values read from build info.
	AppName        string `mapstructure:"APP_NAME"`
	AppVersionName string `mapstructure:"APP_VERSION_NAME"`
	AppVersionCode int64  `mapstructure:"APP_VERSION_CODE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom builds Config from v, which may already have flags bound to it.
// Missing .env is ignored. Env vars override .env.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults registers every key with its default so that AutomaticEnv picks it up on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", "127.0.0.1:7711")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SETTINGS_DATABASE_URL", "")
	v.SetDefault("EVENTS_DATABASE_URL", "")
	v.SetDefault("EVENT_SINK", SinkPostgres)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "device-events")
	v.SetDefault("KAFKA_GROUP_ID", "device-events-loki")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("METRICS_ADDR", ":9464")
	v.SetDefault("SPOOL_DIR", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "device-events-agent")
	v.SetDefault("DEVICE_SETTINGS_ADDR", "")
	v.SetDefault("DEVICE_SETTINGS_PROBE_TIMEOUT", "2s")
	v.SetDefault("DETACHED", false)
	v.SetDefault("APP_NAME", "")
	v.SetDefault("APP_VERSION_NAME", "")
	v.SetDefault("APP_VERSION_CODE", 0)
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	c.EventSink = strings.ToLower(strings.TrimSpace(c.EventSink))
	switch c.EventSink {
	case SinkPostgres, SinkKafka, SinkOTel, SinkSpool, SinkMemory, SinkNone:
	default:
		return fmt.Errorf("config: unknown EVENT_SINK %q", c.EventSink)
	}
	if c.AppVersionCode < 0 {
		return errors.New("config: APP_VERSION_CODE must not be negative")
	}
	return nil
}

// ProbeTimeout parses DeviceSettingsProbeTimeout. Returns 2s if unset or invalid.
func (c *Config) ProbeTimeout() time.Duration {
	d, err := time.ParseDuration(c.DeviceSettingsProbeTimeout)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
