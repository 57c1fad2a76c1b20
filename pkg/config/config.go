// Package config loads the tool configuration.
//
// Sources, in order of precedence: environment variables (FRNSC_*), a
// YAML configuration file, then defaults. CLI flags override individual
// fields after loading.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the frnsc-prefetch tool configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Output controls how the parse command renders results.
	Output OutputConfig `mapstructure:"output" yaml:"output"`

	// Serve contains the HTTP analysis server configuration.
	Serve ServeConfig `mapstructure:"serve" yaml:"serve"`

	// Export contains the timeline export configuration.
	Export ExportConfig `mapstructure:"export" yaml:"export"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is the minimum level: DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR" yaml:"level"`
	// Format is text or json.
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json" yaml:"format"`
	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// OutputConfig controls result rendering.
type OutputConfig struct {
	// Format is table, json or yaml.
	Format string `mapstructure:"format" validate:"omitempty,oneof=table json yaml" yaml:"format"`
}

// ServeConfig configures the serve command.
type ServeConfig struct {
	// Addr is the listen address.
	Addr string `mapstructure:"addr" validate:"required" yaml:"addr"`
	// Root is the image root directory served by default; empty means the
	// live host filesystem.
	Root string `mapstructure:"root" yaml:"root"`
}

// ExportConfig configures the export command.
type ExportConfig struct {
	// Database is the SQLite timeline database path.
	Database string `mapstructure:"database" validate:"required" yaml:"database"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
	if c.Output.Format == "" {
		c.Output.Format = "table"
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = "127.0.0.1:8417"
	}
	if c.Export.Database == "" {
		c.Export.Database = "prefetch-timeline.db"
	}
}

// Validate checks the configuration against its constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Load reads the configuration from the given file (optional) and the
// FRNSC_* environment, applies defaults, and validates the result.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FRNSC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only visits keys viper already knows; bind every key so
	// FRNSC_* variables apply even when no config file sets them.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"output.format", "serve.addr", "serve.root", "export.database",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind environment for %s: %w", key, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	decoderOpt := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decoderOpt); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
