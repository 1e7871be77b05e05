// Package config handles configuration loading for consumer-contracts.
// It supports XDG config paths, project-level overrides, environment
// variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ProjectConfigName is the per-project config file searched for in the
// working directory and its parents.
const ProjectConfigName = ".consumer-contracts.yaml"

// EnvPrefix prefixes environment overrides, e.g. CONSUMER_CONTRACTS_RUN_CONCURRENCY.
const EnvPrefix = "CONSUMER_CONTRACTS"

// Config holds all configuration.
type Config struct {
	Contracts ContractsConfig `mapstructure:"contracts"`
	Run       RunConfig       `mapstructure:"run"`
	Request   RequestConfig   `mapstructure:"request"`
	Output    OutputConfig    `mapstructure:"output"`
	Log       LogConfig       `mapstructure:"log"`
	Watch     WatchConfig     `mapstructure:"watch"`
}

// ContractsConfig locates contract files.
type ContractsConfig struct {
	// Dir is searched when no files are given on the command line.
	Dir string `mapstructure:"dir"`
	// Extensions selects contract files inside Dir.
	Extensions []string `mapstructure:"extensions"`
}

// RunConfig controls batch execution.
type RunConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// RequestConfig holds transport settings.
type RequestConfig struct {
	// Timeout applies to contracts that set none. Zero means no timeout.
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
}

// OutputConfig holds report settings.
type OutputConfig struct {
	// Format is "text" or "json".
	Format string `mapstructure:"format"`
	// Color is "auto", "always" or "never".
	Color string `mapstructure:"color"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// WatchConfig holds watch mode settings.
type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// MetricsAddr serves Prometheus metrics when non-empty.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type loadOptions struct {
	userConfigDir string
	projectConfig *string
	flags         *pflag.FlagSet
	flagKeys      map[string]string
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// WithUserConfigDir overrides the XDG config directory.
func WithUserConfigDir(dir string) LoadOption {
	return func(o *loadOptions) { o.userConfigDir = dir }
}

// WithProjectConfig uses path as the project config instead of searching
// for one. An empty path disables the project config.
func WithProjectConfig(path string) LoadOption {
	return func(o *loadOptions) { o.projectConfig = &path }
}

// WithFlags binds command-line flags to config keys. keys maps a config
// key to a flag name. Only flags set explicitly override other sources.
func WithFlags(fs *pflag.FlagSet, keys map[string]string) LoadOption {
	return func(o *loadOptions) {
		o.flags = fs
		o.flagKeys = keys
	}
}

// Load loads configuration.
// Precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables (CONSUMER_CONTRACTS_*)
// 3. Project config (.consumer-contracts.yaml in current directory or parent)
// 4. User config (~/.config/consumer-contracts/config.yaml)
// 5. Built-in defaults
func Load(opts ...LoadOption) (*Config, error) {
	o := &loadOptions{userConfigDir: getUserConfigDir()}
	for _, opt := range opts {
		opt(o)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(o.userConfigDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := ""
	if o.projectConfig != nil {
		projectConfig = *o.projectConfig
	} else {
		projectConfig = findProjectConfig()
	}
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.flags != nil {
		for key, name := range o.flagKeys {
			flag := o.flags.Lookup(name)
			if flag == nil {
				return nil, fmt.Errorf("binding flag %q: no such flag", name)
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("binding flag %q: %w", name, err)
			}
		}
	}

	return decode(v)
}

// LoadFromPath loads configuration from a specific file over the defaults.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Contracts.Dir = expandEnv(cfg.Contracts.Dir)
	cfg.Watch.MetricsAddr = expandEnv(cfg.Watch.MetricsAddr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("contracts.dir", d.Contracts.Dir)
	v.SetDefault("contracts.extensions", d.Contracts.Extensions)
	v.SetDefault("run.concurrency", d.Run.Concurrency)
	v.SetDefault("request.timeout", d.Request.Timeout.String())
	v.SetDefault("request.max_idle_conns_per_host", d.Request.MaxIdleConnsPerHost)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.color", d.Output.Color)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("watch.interval", d.Watch.Interval.String())
	v.SetDefault("watch.metrics_addr", d.Watch.MetricsAddr)
}

// getUserConfigDir returns the XDG config directory.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "consumer-contracts")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "consumer-contracts")
	}
	return filepath.Join(home, ".config", "consumer-contracts")
}

// findProjectConfig searches for the project config in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Contracts: ContractsConfig{
			Dir:        "contracts",
			Extensions: []string{".yaml", ".yml"},
		},
		Run: RunConfig{
			Concurrency: 4,
		},
		Request: RequestConfig{
			MaxIdleConnsPerHost: 16,
		},
		Output: OutputConfig{
			Format: "text",
			Color:  "auto",
		},
		Log: LogConfig{
			Level: "info",
		},
		Watch: WatchConfig{
			Interval: time.Minute,
		},
	}
}
