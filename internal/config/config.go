// Package config loads zonectl settings from a YAML file, the environment
// and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/ehrlich-b/go-zoned/internal/action"
	"github.com/ehrlich-b/go-zoned/internal/constants"
	"github.com/ehrlich-b/go-zoned/internal/logging"
	"github.com/ehrlich-b/go-zoned/internal/report"
)

// Name is the config file base name and the environment prefix
const Name = "zonectl"

// Output formats
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Config holds zonectl settings
type Config struct {
	ReportVariant  string    `mapstructure:"report_variant" yaml:"report_variant"`
	ActionVariant  string    `mapstructure:"action_variant" yaml:"action_variant"`
	ReportLength   uint32    `mapstructure:"report_length" yaml:"report_length"`
	ReportFilter   uint64    `mapstructure:"report_filter" yaml:"report_filter"`
	ATAPassthrough bool      `mapstructure:"ata_passthrough" yaml:"ata_passthrough"`
	SysfsRoot      string    `mapstructure:"sysfs_root" yaml:"sysfs_root"`
	Output         string    `mapstructure:"output" yaml:"output"`
	Log            LogConfig `mapstructure:"log" yaml:"log"`
}

// SetDefaults registers default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("report_variant", "c")
	v.SetDefault("action_variant", "range")
	v.SetDefault("report_length", constants.DefaultReportLength)
	v.SetDefault("report_filter", 0)
	v.SetDefault("ata_passthrough", false)
	v.SetDefault("sysfs_root", "/sys/block")
	v.SetDefault("output", OutputText)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with zonectl defaults, search paths and
// environment binding. fs is where config files are looked up; nil means
// the OS filesystem.
func New(fs afero.Fs) *viper.Viper {
	v := viper.New()
	if fs != nil {
		v.SetFs(fs)
	}

	v.SetConfigName(Name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/." + Name)
	v.AddConfigPath("/etc/" + Name)

	SetDefaults(v)

	v.SetEnvPrefix(strings.ToUpper(Name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file (file, or the search paths when file is
// empty) into a Config. A missing config file in the search paths is not
// an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no command could use
func (c *Config) Validate() error {
	if _, err := report.ParseVariant(c.ReportVariant); err != nil {
		return fmt.Errorf("report_variant: %w", err)
	}
	if _, err := action.ParseVariant(c.ActionVariant); err != nil {
		return fmt.Errorf("action_variant: %w", err)
	}
	if err := report.ValidateLength(c.ReportLength); err != nil {
		return fmt.Errorf("report_length: %w", err)
	}
	if _, err := report.ParseFilter(c.ReportFilter); err != nil {
		return fmt.Errorf("report_filter: %w", err)
	}
	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("output: unknown format %q", c.Output)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// ReportRequest returns the report settings as typed values
func (c *Config) ReportRequest() (report.Variant, report.Filter, error) {
	v, err := report.ParseVariant(c.ReportVariant)
	if err != nil {
		return 0, 0, err
	}
	f, err := report.ParseFilter(c.ReportFilter)
	if err != nil {
		return 0, 0, err
	}
	return v, f, nil
}

// Logger builds the logger described by c.Log
func (c *Config) Logger() *logging.Logger {
	level, _ := logging.ParseLevel(c.Log.Level)
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Format = c.Log.Format
	return logging.NewLogger(cfg)
}
