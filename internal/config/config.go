package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Yahoo     Yahoo     `mapstructure:"yahoo"`
	Portfolio Portfolio `mapstructure:"portfolio"`
	Refresh   Refresh   `mapstructure:"refresh"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Yahoo holds the configuration for the Yahoo Finance chart API client.
type Yahoo struct {
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Server holds the configuration for the API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Portfolio holds the configuration for summary computation.
type Portfolio struct {
	// IncludeFee switches the holding cost basis to the fee-inclusive
	// break-even basis.
	IncludeFee bool `mapstructure:"include_fee"`
}

// Refresh holds the configuration for the scheduled price refresh.
// The cron expression is evaluated in the exchange timezone (America/New_York).
type Refresh struct {
	Cron string `mapstructure:"cron"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("yahoo.base_url", "https://query1.finance.yahoo.com/v8/finance/chart")
	viper.SetDefault("yahoo.rate_limit", 5)       // requests per second
	viper.SetDefault("yahoo.rate_limit_burst", 2) // burst size
	viper.SetDefault("refresh.cron", "30 16 * * MON-FRI")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
