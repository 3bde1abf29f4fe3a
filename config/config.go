package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the piwatch server. Everything is read
// once at startup; there is no hot reload.
type Config struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`

	// Appliance connection.
	PiholeHost     string `mapstructure:"pihole_host"`
	PiholePassword string `mapstructure:"pihole_password"`

	// MaxEntries caps the blocked list returned to the dashboard.
	MaxEntries int `mapstructure:"max_entries"`
	// RefreshInterval is how often the dashboard page polls for data.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	// SessionRefresh is both the local token lifetime and the background
	// re-login period.
	SessionRefresh time.Duration `mapstructure:"session_refresh"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	HealthTimeout  time.Duration `mapstructure:"health_timeout"`

	OtelServiceName string `mapstructure:"otel_service_name"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetConfigName("piwatch_config") // Name of config file (without extension)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/piwatch/")
	viper.AddConfigPath("$HOME/.piwatch")

	// Environment variable binding
	viper.SetEnvPrefix("PIWATCH") // Will search for PIWATCH_PIHOLE_HOST etc.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("http_addr", "0.0.0.0:5000")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_pretty", true)
	viper.SetDefault("pihole_host", "192.168.1.2")
	viper.SetDefault("pihole_password", "")
	viper.SetDefault("max_entries", 50)
	viper.SetDefault("refresh_interval", "10s")
	viper.SetDefault("session_refresh", "30m")
	viper.SetDefault("request_timeout", "10s")
	viper.SetDefault("health_timeout", "5s")
	viper.SetDefault("otel_service_name", "piwatch")

	if errRead := viper.ReadInConfig(); errRead != nil {
		if _, ok := errRead.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return Config{}, errRead
		}
		// Config file not found; proceed with defaults and env vars.
	}

	err = viper.Unmarshal(&config)

	return
}
