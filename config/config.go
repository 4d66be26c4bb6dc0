// Package config loads configuration shared by all basket binaries.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/delicb/toy-basket/retry"
)

// Config is configuration of every binary in this repository. Each binary
// reads only sections it needs.
type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	NATS   NATSConfig   `mapstructure:"nats"`
	Log    LogConfig    `mapstructure:"log"`
	Retry  RetryConfig  `mapstructure:"retry"`
	Stats  StatsConfig  `mapstructure:"stats"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"` // development, production
}

type ServerConfig struct {
	Address         string          `mapstructure:"address"`
	Mode            string          `mapstructure:"mode"` // local, nats
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Rate    float64 `mapstructure:"rate"` // requests per second
	Burst   int     `mapstructure:"burst"`
}

// StoreConfig selects where baskets are kept.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"` // memory, postgres, mysql, sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ReplyTimeout   time.Duration `mapstructure:"reply_timeout"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`  // debug, info, warn, error
	Format   string `mapstructure:"format"` // json, console
	Output   string `mapstructure:"output"` // stdout, file
	FilePath string `mapstructure:"file_path"`
}

type StatsConfig struct {
	Address string `mapstructure:"address"`
}

// RetryConfig holds retry policies of command execution.
type RetryConfig struct {
	Conflict retry.Policy `mapstructure:"conflict"`
	Publish  retry.Policy `mapstructure:"publish"`

	// PublishTimeout bounds publishing of events of one command.
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// Load reads configuration from defaults, optional config file and environment
// variables (prefixed with BASKET_, dots replaced by underscores), later
// overriding former.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("BASKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "memory", "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}
	switch c.Server.Mode {
	case "local", "nats":
	default:
		return fmt.Errorf("unknown server mode: %q", c.Server.Mode)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "toy-basket")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.address", "0.0.0.0:8001")
	v.SetDefault("server.mode", "local")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.rate", 100)
	v.SetDefault("server.rate_limit.burst", 200)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_open_conns", 25)
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.conn_max_lifetime", "5m")
	v.SetDefault("store.query_timeout", "1s")
	v.SetDefault("store.log_level", "warn")
	v.SetDefault("store.auto_migrate", true)

	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.request_timeout", "1s")
	v.SetDefault("nats.reply_timeout", "5s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "logs/basket.log")

	v.SetDefault("stats.address", "0.0.0.0:8010")

	v.SetDefault("retry.conflict.enabled", false)
	v.SetDefault("retry.conflict.max_attempts", 3)
	v.SetDefault("retry.conflict.initial_delay", "20ms")
	v.SetDefault("retry.conflict.max_delay", "500ms")
	v.SetDefault("retry.conflict.backoff_factor", 2.0)
	v.SetDefault("retry.conflict.jitter_enabled", true)

	v.SetDefault("retry.publish.enabled", true)
	v.SetDefault("retry.publish.max_attempts", 3)
	v.SetDefault("retry.publish.initial_delay", "50ms")
	v.SetDefault("retry.publish.max_delay", "1s")
	v.SetDefault("retry.publish.backoff_factor", 2.0)
	v.SetDefault("retry.publish.jitter_enabled", true)
	v.SetDefault("retry.publish_timeout", "5s")
}
