// Package config loads server configuration from YAML via viper, falling
// back to defaults when no file is present.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"

	"github.com/hashvault/hashvault/internal/validation"
)

// Config holds the vault server configuration.
type Config struct {
	Server ServerConfig
	Log    LogConfig
}

type ServerConfig struct {
	// ListenAddress serves the wire protocol endpoint.
	ListenAddress string
	// MetricsAddress serves /metrics and /healthz.
	MetricsAddress string
	// DataDir holds the user database and blob store.
	DataDir string
	// SessionTTL evicts connections idle longer than this; zero disables
	// reaping entirely (the historical behavior).
	SessionTTL time.Duration
	// RequestRate throttles requests per second per remote address; zero
	// disables throttling. RequestBurst is the per-address burst size.
	RequestRate  float64
	RequestBurst int
}

type LogConfig struct {
	Level string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:  ":8791",
			MetricsAddress: ":9791",
			DataDir:        "data",
			SessionTTL:     0,
			RequestRate:    0,
			RequestBurst:   100,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads <name>.yaml from ./ or ./config. A missing file is not an
// error; any values present override the defaults.
func Load(name string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("config")

	cfg := Default()
	v.SetDefault("server.listenaddress", cfg.Server.ListenAddress)
	v.SetDefault("server.metricsaddress", cfg.Server.MetricsAddress)
	v.SetDefault("server.datadir", cfg.Server.DataDir)
	v.SetDefault("server.sessionttl", cfg.Server.SessionTTL)
	v.SetDefault("server.requestrate", cfg.Server.RequestRate)
	v.SetDefault("server.requestburst", cfg.Server.RequestBurst)
	v.SetDefault("log.level", cfg.Log.Level)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := validation.ListenAddr(c.Server.ListenAddress); err != nil {
		return err
	}
	if err := validation.ListenAddr(c.Server.MetricsAddress); err != nil {
		return err
	}
	if err := validation.NonEmpty("server.datadir", c.Server.DataDir); err != nil {
		return err
	}
	return validation.NonNegativeDuration("server.sessionttl", c.Server.SessionTTL)
}
