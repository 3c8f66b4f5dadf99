package config

import (
	"fmt"
	"os"

	"stock-streamer/src/models"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyEnvOverrides()
	config.applyDefaults()

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// applyEnvOverrides lets the credential come from the environment so it
// never has to live in the YAML file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("UPSTREAM_EMAIL"); v != "" {
		c.Upstream.Email = v
	}
	if v := os.Getenv("UPSTREAM_PASSWORD"); v != "" {
		c.Upstream.Password = v
	}
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.Upstream.RequestTimeout <= 0 {
		c.Upstream.RequestTimeout = 15
	}
	if c.Upstream.MaxRetries <= 0 {
		c.Upstream.MaxRetries = 5
	}
	if c.Upstream.RetryBaseDelayMs <= 0 {
		c.Upstream.RetryBaseDelayMs = 1000
	}
	if c.Upstream.TokenLifetimeMin <= 0 {
		c.Upstream.TokenLifetimeMin = 60
	}
	if c.Upstream.TokenSafetyMarginMin <= 0 {
		c.Upstream.TokenSafetyMarginMin = 5
	}
	if c.Poll.IntervalSeconds <= 0 {
		c.Poll.IntervalSeconds = 60
	}
	if c.Poll.ColdStartDelayMs <= 0 {
		c.Poll.ColdStartDelayMs = 500
	}
	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}
	if c.Market.MIC == "" {
		c.Market.MIC = "xdha"
	}
	if c.Market.Timezone == "" {
		c.Market.Timezone = "Asia/Dhaka"
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	// Validate App configuration (Flattened)
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}

	// Validate Upstream configuration.
	// A missing credential is the only startup-fatal condition: it has to
	// be caught here, before the scheduler starts.
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base_url cannot be empty")
	}
	if c.Upstream.Email == "" || c.Upstream.Password == "" {
		return fmt.Errorf("upstream credential missing (set upstream.email/password or UPSTREAM_EMAIL/UPSTREAM_PASSWORD)")
	}

	// Validate Storage configuration
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}

	// Validate Poll configuration
	if c.Poll.IntervalSeconds <= 0 {
		return fmt.Errorf("poll interval must be greater than 0")
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
