package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/remask/remask/internal/masking"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	config := GetDefaults()

	// Configure viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/remask/")
	viper.AddConfigPath("$HOME/.remask/")

	// Environment variable overrides
	viper.SetEnvPrefix("REMASK")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Use specific config file if provided
	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	for name := range config.Masking.Categories {
		if !masking.Category(name).Valid() {
			return fmt.Errorf("unknown masking category: %s", name)
		}
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("invalid rate limit: %v requests per second", config.RateLimit.RequestsPerSecond)
	}

	if config.Proxy.Enabled && config.Proxy.Upstream == "" {
		return fmt.Errorf("proxy mode requires an upstream URL")
	}

	if config.Sessions.Enabled {
		if config.Sessions.RedisURL == "" {
			return fmt.Errorf("session storage requires a redis URL")
		}
		if config.Sessions.TTL <= 0 {
			return fmt.Errorf("invalid session TTL: %v", config.Sessions.TTL)
		}
	}

	if config.Patterns.Database.Enabled && config.Patterns.Database.URL == "" {
		return fmt.Errorf("pattern database requires a connection URL")
	}

	return nil
}

// Watch starts watching the configuration file for changes
func Watch(config *Config, callback func(*Config)) error {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := viper.Unmarshal(newConfig); err != nil {
			// Keep serving the previous configuration
			return
		}

		if err := validateConfig(newConfig); err != nil {
			// Keep serving the previous configuration
			return
		}

		callback(newConfig)
	})

	return nil
}
