package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// Run modes.
const (
	modeServe   = "serve"
	modePublish = "publish"
	modeListen  = "listen"
)

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	Mode            string
	ConfigPath      string
	BrokerURL       string
	UserID          string
	Text            string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.Mode, "mode", modeServe,
		"Run mode: serve, publish, listen")

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("FIELDRELAY_CONFIG", ""),
		"Path to YAML configuration file (env: FIELDRELAY_CONFIG)")

	flag.StringVar(&cfg.BrokerURL, "broker-url", "",
		"Broker WebSocket URL for publish/listen modes (env: FIELDRELAY_BROKER_URL)")

	flag.StringVar(&cfg.UserID, "user", "",
		"User identity stamped on published envelopes (env: FIELDRELAY_USER_ID)")

	flag.StringVar(&cfg.Text, "text", "",
		"Publish this text once and exit; omit to read lines from stdin")

	flag.StringVar(&cfg.LogLevel, "log-level", "",
		"Log level: debug, info, warn, error (env: FIELDRELAY_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format", "",
		"Log format: json, text (env: FIELDRELAY_LOG_FORMAT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("FIELDRELAY_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: FIELDRELAY_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")

	flag.Parse()
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	switch cfg.Mode {
	case modeServe, modePublish, modeListen:
	default:
		return fmt.Errorf("mode must be %s, %s or %s, got %q",
			modeServe, modePublish, modeListen, cfg.Mode)
	}
	if cfg.Text != "" && cfg.Mode != modePublish {
		return fmt.Errorf("-text only applies to -mode %s", modePublish)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", cfg.ShutdownTimeout)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
