// Package config loads the portal's process configuration from an optional YAML
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/frontiertower/guest-portal/internal/settings"
)

// Config is the effective process configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Settings   SettingsConfig   `mapstructure:"settings"`
	Controller ControllerConfig `mapstructure:"controller"`
	Guests     GuestsConfig     `mapstructure:"guests"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type SettingsConfig struct {
	// Backend is sqlite, redis or memory.
	Backend  string `mapstructure:"backend"`
	RedisURL string `mapstructure:"redis_url"`
}

// ControllerConfig carries the environment-level controller defaults. Values saved
// through the admin API take precedence over these.
type ControllerConfig struct {
	APIType    string        `mapstructure:"api_type"`
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	Site       string        `mapstructure:"site"`
	PrivateKey string        `mapstructure:"private_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type GuestsConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type AdminConfig struct {
	Password string        `mapstructure:"password"`
	KeysDir  string        `mapstructure:"keys_dir"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type LogConfig struct {
	// Format is development or production.
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// controllerEnv maps controller keys to the unprefixed variable names deployments
// already use.
var controllerEnv = map[string]string{
	"controller.api_type":    "UNIFI_API_TYPE",
	"controller.url":         "UNIFI_CONTROLLER_URL",
	"controller.api_key":     "UNIFI_API_KEY",
	"controller.username":    "UNIFI_USERNAME",
	"controller.password":    "UNIFI_PASSWORD",
	"controller.site":        "UNIFI_SITE",
	"controller.private_key": "OPENNDS_PRIVATE_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "./data/portal.db")
	v.SetDefault("settings.backend", "sqlite")
	v.SetDefault("settings.redis_url", "")
	v.SetDefault("controller.timeout", 10*time.Second)
	v.SetDefault("guests.sweep_interval", time.Minute)
	v.SetDefault("admin.password", "")
	v.SetDefault("admin.keys_dir", "./data/keys")
	v.SetDefault("admin.token_ttl", 12*time.Hour)
	v.SetDefault("log.format", "development")
	v.SetDefault("log.level", "info")

	for key := range controllerEnv {
		v.SetDefault(key, "")
	}
}

// Load reads the configuration. path may name a YAML file; when empty, portal.yaml
// is looked up in the working directory and ./config, and its absence is not an
// error. Environment variables (PORTAL_SERVER_PORT, UNIFI_API_KEY, ...) override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range controllerEnv {
		if err := v.BindEnv(key, "PORTAL_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("portal")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Settings.Backend {
	case "sqlite", "memory":
	case "redis":
		if c.Settings.RedisURL == "" {
			return errors.New("settings.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown settings backend %q", c.Settings.Backend)
	}

	switch c.Log.Format {
	case "development", "production":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}

	if c.Controller.Timeout <= 0 {
		return errors.New("controller.timeout must be positive")
	}
	return nil
}

// SettingDefaults returns the controller defaults keyed by setting key, ready for
// settings.NewResolver.
func (c *Config) SettingDefaults() map[string]string {
	return map[string]string{
		settings.KeyAPIType:        c.Controller.APIType,
		settings.KeyControllerURL:  c.Controller.URL,
		settings.KeyAPIKey:         c.Controller.APIKey,
		settings.KeyUsername:       c.Controller.Username,
		settings.KeyPassword:       c.Controller.Password,
		settings.KeySite:           c.Controller.Site,
		settings.KeyOpenNDSPrivKey: c.Controller.PrivateKey,
	}
}
