package models

// MConfig Structure
type MConfig struct {
	Name     string          `yaml:"name"`
	Host     string          `yaml:"host"`
	Port     int             `yaml:"port"`
	LogLevel string          `yaml:"log_level"`
	Upstream MUpstreamConfig `yaml:"upstream"`
	Poll     MPollConfig     `yaml:"poll"`
	Storage  MStorageConfig  `yaml:"storage"`
	Market   MMarketConfig   `yaml:"market"`
}

type MUpstreamConfig struct {
	BaseURL              string `yaml:"base_url"`
	Email                string `yaml:"email"`
	Password             string `yaml:"password"`
	RequestTimeout       int    `yaml:"timeout"`
	MaxRetries           int    `yaml:"retries"`
	RetryBaseDelayMs     int    `yaml:"retry_base_delay_ms"`
	TokenLifetimeMin     int    `yaml:"token_lifetime_minutes"`
	TokenSafetyMarginMin int    `yaml:"token_safety_margin_minutes"`
}

type MPollConfig struct {
	IntervalSeconds  int  `yaml:"interval_seconds"`
	ColdStartDelayMs int  `yaml:"cold_start_delay_ms"`
	MarketHoursOnly  bool `yaml:"market_hours_only"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	RestoreOnStart     bool   `yaml:"restore_on_start"`
}

type MMarketConfig struct {
	MIC      string `yaml:"mic"`
	Timezone string `yaml:"timezone"`
}
