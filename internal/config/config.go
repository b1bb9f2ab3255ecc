// Package config loads bizflow settings from bizflow.yaml, BIZFLOW_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BIZFLOW_HTTP_ADDR.
const EnvPrefix = "BIZFLOW"

// Config holds the configuration for the service.
type Config struct {
	Database struct {
		Driver string `mapstructure:"driver"`
		Path   string `mapstructure:"path"`
		URL    string `mapstructure:"url"`
	} `mapstructure:"database"`
	Engine struct {
		ActionTimeout time.Duration `mapstructure:"action_timeout"`
	} `mapstructure:"engine"`
	HTTP struct {
		Addr            string        `mapstructure:"addr"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"http"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
	NATS struct {
		URL           string `mapstructure:"url"`
		EventsSubject string `mapstructure:"events_subject"`
		Queue         string `mapstructure:"queue"`
	} `mapstructure:"nats"`
	Messaging struct {
		Driver string `mapstructure:"driver"`
	} `mapstructure:"messaging"`
	RateLimit struct {
		Limit     int           `mapstructure:"limit"`
		Window    time.Duration `mapstructure:"window"`
		Backend   string        `mapstructure:"backend"`
		RedisAddr string        `mapstructure:"redis_addr"`
	} `mapstructure:"ratelimit"`
	Logging struct {
		Format string `mapstructure:"format"`
		Level  string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// SetDefaults installs the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "bizflow.db")
	v.SetDefault("database.url", "")
	v.SetDefault("engine.action_timeout", 10*time.Second)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.events_subject", "bizflow.events.>")
	v.SetDefault("nats.queue", "bizflow-engine")
	v.SetDefault("messaging.driver", "simulated")
	v.SetDefault("ratelimit.limit", 60)
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.redis_addr", "localhost:6379")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.level", "info")
}

// Load reads configuration into a Config. An explicit file must exist; with
// no file, bizflow.yaml is searched in . and ./config and is optional.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("bizflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated values and required companions.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver))
	}

	switch c.Messaging.Driver {
	case "simulated":
	case "nats":
		if c.NATS.URL == "" {
			errs = append(errs, errors.New("nats.url is required for messaging.driver nats"))
		}
	default:
		errs = append(errs, fmt.Errorf("messaging.driver must be simulated or nats, got %q", c.Messaging.Driver))
	}

	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("ratelimit.backend must be memory or redis, got %q", c.RateLimit.Backend))
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("ratelimit.limit and ratelimit.window must be positive"))
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
