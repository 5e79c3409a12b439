// Package config provides configuration management for the go-powerdash application.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	// General settings
	LogLevel string `mapstructure:"log_level"`

	// Transport settings
	Transport struct {
		// Kind selects the transport implementation: "websocket" or "mqtt".
		Kind    string `mapstructure:"kind"`
		Address string `mapstructure:"address"`
		// Topic is the MQTT root topic; ignored by the websocket transport.
		Topic string `mapstructure:"topic"`
	} `mapstructure:"transport"`

	// Reconnect backoff settings
	Reconnect struct {
		InitialDelay time.Duration `mapstructure:"initial_delay"`
		MaxDelay     time.Duration `mapstructure:"max_delay"`
		MaxAttempts  int           `mapstructure:"max_attempts"`
	} `mapstructure:"reconnect"`

	// Buffer capacities
	Buffers struct {
		LogCapacity          int `mapstructure:"log_capacity"`
		NotificationCapacity int `mapstructure:"notification_capacity"`
	} `mapstructure:"buffers"`

	// HTTP API settings
	API struct {
		Enabled bool   `mapstructure:"enabled"`
		Host    string `mapstructure:"host"`
		Port    int    `mapstructure:"port"`
	} `mapstructure:"api"`

	// Preference persistence settings
	Prefs struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"prefs"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{
		LogLevel: "info",
	}

	// Default transport settings
	cfg.Transport.Kind = "websocket"
	cfg.Transport.Address = "ws://localhost:3001/events"
	cfg.Transport.Topic = "powerdash"

	// Default reconnect settings: unbounded attempts, 1s initial, 5s cap
	cfg.Reconnect.InitialDelay = time.Second
	cfg.Reconnect.MaxDelay = 5 * time.Second
	cfg.Reconnect.MaxAttempts = 0

	// Default buffer capacities
	cfg.Buffers.LogCapacity = 50
	cfg.Buffers.NotificationCapacity = 50

	// Default API settings
	cfg.API.Enabled = true
	cfg.API.Host = "0.0.0.0"
	cfg.API.Port = 8080

	// Default preference file
	cfg.Prefs.Path = "prefs.yaml"

	return cfg
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case "websocket", "mqtt":
	default:
		return fmt.Errorf("unsupported transport kind %q", c.Transport.Kind)
	}

	if c.Transport.Address == "" {
		return errors.New("transport address must not be empty")
	}
	if c.Reconnect.InitialDelay <= 0 {
		return errors.New("reconnect initial_delay must be positive")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return errors.New("reconnect max_delay must be >= initial_delay")
	}
	if c.Buffers.LogCapacity <= 0 || c.Buffers.NotificationCapacity <= 0 {
		return errors.New("buffer capacities must be positive")
	}

	return nil
}

// Load reads the configuration from a file and environment variables.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Set up Viper
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Override with specific config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Println("No configuration file found, using defaults")
		} else {
			// Other errors (like invalid YAML) should be returned
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	// Bind environment variables
	v.SetEnvPrefix("POWERDASH")
	v.AutomaticEnv()

	// Unmarshal config
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Print displays the current configuration.
func (c *Config) Print() {
	logger := log.With().Str("component", "config").Logger()
	logger.Info().Msg("go-powerdash Configuration:")
	logger.Info().Msg("-----------------------------")
	logger.Info().Str("log_level", c.LogLevel).Msg("Log Level")

	logger.Info().
		Str("kind", c.Transport.Kind).
		Str("address", c.Transport.Address).
		Str("topic", c.Transport.Topic).
		Msg("Transport")

	logger.Info().
		Dur("initial_delay", c.Reconnect.InitialDelay).
		Dur("max_delay", c.Reconnect.MaxDelay).
		Int("max_attempts", c.Reconnect.MaxAttempts).
		Msg("Reconnect policy")

	logger.Info().
		Int("log_capacity", c.Buffers.LogCapacity).
		Int("notification_capacity", c.Buffers.NotificationCapacity).
		Msg("Buffers")

	logger.Info().Bool("enabled", c.API.Enabled).Msg("API Enabled")
	if c.API.Enabled {
		logger.Info().
			Str("host", c.API.Host).
			Int("port", c.API.Port).
			Msg("API Server")
	}

	logger.Info().Str("path", c.Prefs.Path).Msg("Preference file")
	logger.Info().Msg("-----------------------------")
}
