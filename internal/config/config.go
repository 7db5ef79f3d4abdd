// Package config provides configuration management for casefolio using
// Viper for flexible loading from YAML files, environment variables with the
// CASEFOLIO_ prefix, and command-line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/casefolio/casefolio/internal/errs"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Templates TemplatesConfig `yaml:"templates"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Environment    string   `yaml:"environment"`
}

type StorageConfig struct {
	// Path is the SQLite database file; ":memory:" keeps everything
	// in-process, which the test suite relies on.
	Path string `yaml:"path"`
}

type TemplatesConfig struct {
	// Dir holds the on-disk template documents (.yaml, .yml or .json).
	Dir string `yaml:"dir"`
	// Watch enables live reloading of the template directory.
	Watch bool `yaml:"watch"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load builds a Config from viper's current state, applying defaults where
// nothing was set, then validates it.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errs.NewConfigError("unmarshal_failed", err.Error())
	}

	applyDefaults(&config)

	// Workarounds for viper's handling of slices and bools that were set
	// through env vars rather than the config file.
	if viper.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = viper.GetStringSlice("server.allowed_origins")
	}
	if viper.IsSet("templates.watch") {
		config.Templates.Watch = viper.GetBool("templates.watch")
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Port == 0 {
		config.Server.Port = 8090
	}
	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Environment == "" {
		config.Server.Environment = "development"
	}
	if config.Storage.Path == "" {
		config.Storage.Path = "casefolio.db"
	}
	if config.Templates.Dir == "" {
		config.Templates.Dir = "./templates"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

// validateConfig rejects configurations that cannot possibly work.
func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return errs.NewConfigError("invalid_port",
			fmt.Sprintf("server port %d outside valid range 1-65535", config.Server.Port))
	}

	if strings.ContainsAny(config.Server.Host, " \t\n") {
		return errs.NewConfigError("invalid_host",
			fmt.Sprintf("server host %q contains whitespace", config.Server.Host))
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return errs.NewConfigError("invalid_log_format",
			fmt.Sprintf("log format %q, want text or json", config.Log.Format))
	}

	if strings.ContainsRune(config.Templates.Dir, '\x00') {
		return errs.NewConfigError("invalid_template_dir", "template directory contains NUL")
	}

	return nil
}
