package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are
// separated with a double underscore, e.g. DISPATCH_SERVER__PORT.
const EnvPrefix = "DISPATCH_"

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	NewRelic NewRelicConfig `koanf:"newrelic"`
	Dispatch DispatchConfig `koanf:"dispatch"`
	Signals  SignalsConfig  `koanf:"signals"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	MQTT     MQTTConfig     `koanf:"mqtt"`
	Maps     MapsConfig     `koanf:"maps"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string        `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `koanf:"host"`
	Port            string        `koanf:"port"`
	User            string        `koanf:"user"`
	Password        string        `koanf:"password"`
	DBName          string        `koanf:"dbname"`
	SSLMode         string        `koanf:"sslmode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string `koanf:"app_name"`
	LicenseKey string `koanf:"license_key"`
	Enabled    bool   `koanf:"enabled"`
}

// DispatchConfig tunes matching, bidding and pricing.
type DispatchConfig struct {
	BasePrice        int64         `koanf:"base_price"`
	SearchRadiusKm   float64       `koanf:"search_radius_km"`
	MinAcceptScore   float64       `koanf:"min_accept_score"`
	SealedWindow     time.Duration `koanf:"sealed_window"`
	FCFSWindow       time.Duration `koanf:"fcfs_window"`
	MinimumBidRatio  float64       `koanf:"minimum_bid_ratio"`
	MaxBidRatio      float64       `koanf:"max_bid_ratio"`
	EarlyClose       bool          `koanf:"early_close"`
	RequestLockTTL   time.Duration `koanf:"request_lock_ttl"`
	LocationFreshFor time.Duration `koanf:"location_fresh_for"`
	ModelWeightsFile string        `koanf:"model_weights_file"`
}

// SignalsConfig holds live-signal cache settings.
type SignalsConfig struct {
	TrafficTTL   time.Duration `koanf:"traffic_ttl"`
	WeatherTTL   time.Duration `koanf:"weather_ttl"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	WeatherURL   string        `koanf:"weather_url"`
	Shared       bool          `koanf:"shared"`
}

// KafkaConfig holds the event sink producer settings.
type KafkaConfig struct {
	Enabled bool     `koanf:"enabled"`
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

// MQTTConfig holds the courier push channel settings.
type MQTTConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Broker   string `koanf:"broker"`
	ClientID string `koanf:"client_id"`
	QoS      byte   `koanf:"qos"`
}

// MapsConfig holds the Google Maps client settings.
type MapsConfig struct {
	APIKey string `koanf:"api_key"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `koanf:"level"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            "5432",
			User:            "postgres",
			Password:        "postgres",
			DBName:          "dispatch",
			SSLMode:         "disable",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		NewRelic: NewRelicConfig{
			AppName: "courier-dispatch",
		},
		Dispatch: DispatchConfig{
			BasePrice:        1500,
			SearchRadiusKm:   5,
			MinAcceptScore:   0.55,
			SealedWindow:     5 * time.Minute,
			FCFSWindow:       10 * time.Minute,
			MinimumBidRatio:  0.8,
			MaxBidRatio:      2.0,
			RequestLockTTL:   30 * time.Second,
			LocationFreshFor: 2 * time.Minute,
		},
		Signals: SignalsConfig{
			TrafficTTL:   5 * time.Minute,
			WeatherTTL:   30 * time.Minute,
			FetchTimeout: 300 * time.Millisecond,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "dispatch.events",
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "dispatch",
			QoS:      1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML or JSON
// file and DISPATCH_ environment overrides, in that order.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps DISPATCH_DISPATCH__SEALED_WINDOW to dispatch.sealed_window.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	d := c.Dispatch
	switch {
	case d.BasePrice <= 0:
		return fmt.Errorf("dispatch.base_price must be positive")
	case d.MinAcceptScore < 0 || d.MinAcceptScore > 1:
		return fmt.Errorf("dispatch.min_accept_score must be within [0,1]")
	case d.SealedWindow <= 0 || d.FCFSWindow <= 0:
		return fmt.Errorf("bidding windows must be positive")
	case d.MinimumBidRatio <= 0 || d.MinimumBidRatio > 1:
		return fmt.Errorf("dispatch.minimum_bid_ratio must be within (0,1]")
	case d.MaxBidRatio < 1:
		return fmt.Errorf("dispatch.max_bid_ratio must be at least 1")
	case c.Kafka.Enabled && len(c.Kafka.Brokers) == 0:
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	return nil
}
