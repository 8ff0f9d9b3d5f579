// Package config loads and validates the relay configuration from YAML with
// environment variable overrides.
//
// Resolution order, later entries winning: built-in defaults, then the YAML
// file (when one is given), then FIELDRELAY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/antonypamo/ProSavantEngine/errors"
)

// Environment variable names recognized as overrides.
const (
	EnvBrokerAddr  = "FIELDRELAY_BROKER_ADDR"
	EnvBrokerPath  = "FIELDRELAY_BROKER_PATH"
	EnvBrokerURL   = "FIELDRELAY_BROKER_URL"
	EnvMetricsPort = "FIELDRELAY_METRICS_PORT"
	EnvLogLevel    = "FIELDRELAY_LOG_LEVEL"
	EnvLogFormat   = "FIELDRELAY_LOG_FORMAT"
	EnvUserID      = "FIELDRELAY_USER_ID"
	EnvEmbedderURL = "FIELDRELAY_EMBEDDER_URL"
	EnvEmbedderKey = "FIELDRELAY_EMBEDDER_API_KEY"
)

// Config is the complete application configuration.
type Config struct {
	Broker   BrokerConfig   `yaml:"broker"`
	Client   ClientConfig   `yaml:"client"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
	Dataset  DatasetConfig  `yaml:"dataset"`
}

// BrokerConfig configures the relay server.
type BrokerConfig struct {
	Addr        string        `yaml:"addr"`
	Path        string        `yaml:"path"`
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// ClientConfig configures publishers and subscribers.
type ClientConfig struct {
	BrokerURL        string        `yaml:"broker_url"`
	UserID           string        `yaml:"user_id"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// EmbedderConfig selects and configures the embedding producer.
type EmbedderConfig struct {
	// Kind is "lexical" or "http".
	Kind       string  `yaml:"kind"`
	Dimensions int     `yaml:"dimensions"`
	BaseURL    string  `yaml:"base_url"`
	Model      string  `yaml:"model"`
	APIKey     string  `yaml:"api_key"`
	RateLimit  float64 `yaml:"rate_limit"`
}

// MetricsConfig configures the Prometheus endpoint. Port 0 disables it.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// DatasetConfig configures structured data discovery.
type DatasetConfig struct {
	BasePath    string `yaml:"base_path"`
	LogFilename string `yaml:"log_filename"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Addr:        ":8765",
			Path:        "/",
			SendTimeout: 5 * time.Second,
		},
		Client: ClientConfig{
			BrokerURL:        "ws://localhost:8765/",
			UserID:           "anonymous",
			HandshakeTimeout: 10 * time.Second,
		},
		Embedder: EmbedderConfig{
			Kind:      "lexical",
			RateLimit: 10,
		},
		Metrics: MetricsConfig{
			Port: 0,
			Path: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "read config file")
		}
		decoder := yaml.NewDecoder(strings.NewReader(string(data)))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, errors.WrapFatal(
				fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
				"config", "Load", "parse config file")
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays FIELDRELAY_* environment variables.
func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvBrokerAddr); v != "" {
		cfg.Broker.Addr = v
	}
	if v := os.Getenv(EnvBrokerPath); v != "" {
		cfg.Broker.Path = v
	}
	if v := os.Getenv(EnvBrokerURL); v != "" {
		cfg.Client.BrokerURL = v
	}
	if v := os.Getenv(EnvUserID); v != "" {
		cfg.Client.UserID = v
	}
	if v := os.Getenv(EnvEmbedderURL); v != "" {
		cfg.Embedder.BaseURL = v
		cfg.Embedder.Kind = "http"
	}
	if v := os.Getenv(EnvEmbedderKey); v != "" {
		cfg.Embedder.APIKey = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv(EnvMetricsPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.WrapFatal(
				fmt.Errorf("%w: %s must be an integer, got %q", errors.ErrInvalidConfig, EnvMetricsPort, v),
				"config", "Load", "parse environment override")
		}
		cfg.Metrics.Port = port
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	fail := func(msg string) error {
		return errors.WrapFatal(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg),
			"config", "Validate", "check configuration")
	}

	if c.Broker.Addr == "" {
		return fail("broker.addr must not be empty")
	}
	if !strings.HasPrefix(c.Broker.Path, "/") {
		return fail("broker.path must start with /")
	}
	if c.Broker.SendTimeout <= 0 {
		return fail("broker.send_timeout must be positive")
	}

	if c.Client.BrokerURL != "" &&
		!strings.HasPrefix(c.Client.BrokerURL, "ws://") &&
		!strings.HasPrefix(c.Client.BrokerURL, "wss://") {
		return fail("client.broker_url must use ws:// or wss://")
	}
	if c.Client.HandshakeTimeout <= 0 {
		return fail("client.handshake_timeout must be positive")
	}

	switch c.Embedder.Kind {
	case "lexical":
	case "http":
		if c.Embedder.BaseURL == "" {
			return fail("embedder.base_url is required for the http embedder")
		}
		if c.Embedder.Model == "" {
			return fail("embedder.model is required for the http embedder")
		}
	default:
		return fail(fmt.Sprintf("embedder.kind must be lexical or http, got %q", c.Embedder.Kind))
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fail("metrics.port must be in [0, 65535]")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fail(fmt.Sprintf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fail(fmt.Sprintf("logging.format must be json or text, got %q", c.Logging.Format))
	}

	return nil
}
