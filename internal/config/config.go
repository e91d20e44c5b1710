// Package config loads service settings from defaults, an optional JSON
// file, and CAMPUSNAV_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CAMPUSNAV_DATABASE_URL.
const EnvPrefix = "CAMPUSNAV"

// Config is the full service configuration.
type Config struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"logLevel"`
	Env      string `mapstructure:"env"`

	Database struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"database"`

	Redis struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"redis"`

	Auth struct {
		Token string `mapstructure:"token"`
	} `mapstructure:"auth"`

	Routing struct {
		BaseURL string        `mapstructure:"baseUrl"`
		APIKey  string        `mapstructure:"apiKey"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"routing"`

	Images struct {
		BaseURL string `mapstructure:"baseUrl"`
	} `mapstructure:"images"`

	Map struct {
		DefaultLat  float64 `mapstructure:"defaultLat"`
		DefaultLon  float64 `mapstructure:"defaultLon"`
		DefaultZoom float64 `mapstructure:"defaultZoom"`
	} `mapstructure:"map"`

	Cache struct {
		TTL time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cache"`

	Sentry struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"sentry"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("logLevel", "info")
	v.SetDefault("env", "development")

	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("auth.token", "")

	v.SetDefault("routing.baseUrl", "https://api.openrouteservice.org/v2/directions/foot-walking")
	v.SetDefault("routing.apiKey", "")
	v.SetDefault("routing.timeout", "10s")

	v.SetDefault("images.baseUrl", "")

	// Université Toulouse III, main campus.
	v.SetDefault("map.defaultLat", 43.5615)
	v.SetDefault("map.defaultLon", 1.4686)
	v.SetDefault("map.defaultZoom", 15.0)

	v.SetDefault("cache.ttl", "0s")

	v.SetDefault("sentry.dsn", "")
}

// Load builds a Config. With a non-empty path the JSON file must exist;
// otherwise campusnav.json is read from the working directory if present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("json")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("campusnav")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "database.url")
	}
	if c.Redis.URL == "" {
		missing = append(missing, "redis.url")
	}
	if c.Auth.Token == "" {
		missing = append(missing, "auth.token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	if c.Map.DefaultLat < -90 || c.Map.DefaultLat > 90 || c.Map.DefaultLon < -180 || c.Map.DefaultLon > 180 {
		return fmt.Errorf("map default center %f,%f out of range", c.Map.DefaultLat, c.Map.DefaultLon)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %s", c.Cache.TTL)
	}
	return nil
}
