// Package config loads the server's JSON configuration document via
// Viper, generalizing the teacher's getEnvOrDefault pattern into
// file + environment + default precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config mirrors the recognized JSON options from the external
// interfaces section of the specification.
type Config struct {
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Client struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"client"`

	Limits struct {
		MaxMessageSize             int     `mapstructure:"max_message_size"`
		ReadTimeout                float64 `mapstructure:"read_timeout"`
		MaxNameLength              int     `mapstructure:"max_name_length"`
		RateLimitMessagesPerSecond int     `mapstructure:"rate_limit_messages_per_second"`
		RateLimitWindowSeconds     float64 `mapstructure:"rate_limit_window_seconds"`
	} `mapstructure:"limits"`

	Logging struct {
		Level     string `mapstructure:"level"`
		LogToFile bool   `mapstructure:"log_to_file"`
		LogFile   string `mapstructure:"log_file"`
	} `mapstructure:"logging"`
}

// ReadTimeoutDuration converts Limits.ReadTimeout (seconds) to a
// time.Duration.
func (c Config) ReadTimeoutDuration() time.Duration {
	return time.Duration(c.Limits.ReadTimeout * float64(time.Second))
}

// RateLimitWindowDuration converts Limits.RateLimitWindowSeconds to a
// time.Duration.
func (c Config) RateLimitWindowDuration() time.Duration {
	return time.Duration(c.Limits.RateLimitWindowSeconds * float64(time.Second))
}

// ServerAddr formats the listen address as host:port.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 10000)
	v.SetDefault("client.host", "127.0.0.1")
	v.SetDefault("client.port", 10000)
	v.SetDefault("limits.max_message_size", 4096)
	v.SetDefault("limits.read_timeout", 30.0)
	v.SetDefault("limits.max_name_length", 50)
	v.SetDefault("limits.rate_limit_messages_per_second", 10)
	v.SetDefault("limits.rate_limit_window_seconds", 1.0)
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.log_to_file", false)
	v.SetDefault("logging.log_file", "server.log")
}

// Load reads the JSON config document at path, applying defaults for any
// unset key and honoring CHATSERVER_-prefixed environment overrides (dots
// in a key become underscores, e.g. CHATSERVER_SERVER_PORT). If
// path does not exist, it is created with the defaults (per the external
// interfaces contract: "absence of the file creates it with defaults").
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)
	v.SetEnvPrefix("CHATSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
				if writeErr := v.SafeWriteConfigAs(path); writeErr != nil {
					return Config{}, fmt.Errorf("config: write default config: %w", writeErr)
				}
			} else {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
