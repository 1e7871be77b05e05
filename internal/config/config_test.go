package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Contracts.Dir != "contracts" {
		t.Errorf("expected contracts dir 'contracts', got %q", cfg.Contracts.Dir)
	}
	if cfg.Run.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.Run.Concurrency)
	}
	if cfg.Request.MaxIdleConnsPerHost != 16 {
		t.Errorf("expected max idle conns 16, got %d", cfg.Request.MaxIdleConnsPerHost)
	}
	if cfg.Watch.Interval != time.Minute {
		t.Errorf("expected watch interval 1m, got %v", cfg.Watch.Interval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, `
contracts:
  dir: api-contracts
  extensions: [".yaml"]
run:
  concurrency: 8
request:
  timeout: 5s
  max_idle_conns_per_host: 32
output:
  format: json
  color: never
log:
  level: debug
watch:
  interval: 30s
  metrics_addr: ":9090"
`)

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	want := &Config{
		Contracts: ContractsConfig{Dir: "api-contracts", Extensions: []string{".yaml"}},
		Run:       RunConfig{Concurrency: 8},
		Request:   RequestConfig{Timeout: 5 * time.Second, MaxIdleConnsPerHost: 32},
		Output:    OutputConfig{Format: "json", Color: "never"},
		Log:       LogConfig{Level: "debug"},
		Watch:     WatchConfig{Interval: 30 * time.Second, MetricsAddr: ":9090"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Precedence(t *testing.T) {
	tmpDir := t.TempDir()
	userDir := filepath.Join(tmpDir, "xdg")
	writeFile(t, filepath.Join(userDir, "config.yaml"), `
run:
  concurrency: 2
output:
  format: json
log:
  level: debug
`)
	projectConfig := filepath.Join(tmpDir, "project", ProjectConfigName)
	writeFile(t, projectConfig, `
run:
  concurrency: 6
contracts:
  dir: ${CONTRACTS_HOME}/contracts
`)
	t.Setenv("CONTRACTS_HOME", "/srv")
	t.Setenv("CONSUMER_CONTRACTS_LOG_LEVEL", "trace")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("concurrency", 1, "")
	fs.String("format", "text", "")
	if err := fs.Parse([]string{"--concurrency=10"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg, err := Load(
		WithUserConfigDir(userDir),
		WithProjectConfig(projectConfig),
		WithFlags(fs, map[string]string{"run.concurrency": "concurrency", "output.format": "format"}),
	)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Run.Concurrency != 10 {
		t.Errorf("concurrency = %d, want 10 from flag", cfg.Run.Concurrency)
	}
	if cfg.Output.Format != "json" {
		t.Errorf("format = %q, want json from user config (flag unset)", cfg.Output.Format)
	}
	if cfg.Log.Level != "trace" {
		t.Errorf("log level = %q, want trace from env", cfg.Log.Level)
	}
	if cfg.Contracts.Dir != "/srv/contracts" {
		t.Errorf("contracts dir = %q, want /srv/contracts", cfg.Contracts.Dir)
	}
	if cfg.Watch.Interval != time.Minute {
		t.Errorf("watch interval = %v, want default 1m", cfg.Watch.Interval)
	}
}

func TestLoad_NoConfigFiles(t *testing.T) {
	cfg, err := Load(WithUserConfigDir(t.TempDir()), WithProjectConfig(""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_UnknownFlag(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_, err := Load(WithUserConfigDir(t.TempDir()), WithProjectConfig(""), WithFlags(fs, map[string]string{"run.concurrency": "missing"}))
	if err == nil {
		t.Error("expected error binding unknown flag")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{"concurrency", func(c *Config) { c.Run.Concurrency = 0 }, "run.concurrency"},
		{"format", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"color", func(c *Config) { c.Output.Color = "sometimes" }, "output.color"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"timeout", func(c *Config) { c.Request.Timeout = -time.Second }, "request.timeout"},
		{"interval", func(c *Config) { c.Watch.Interval = 0 }, "watch.interval"},
		{"extensions", func(c *Config) { c.Contracts.Extensions = nil }, "contracts.extensions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantKey) {
				t.Errorf("Validate() = %q, want mention of %s", err.Error(), tt.wantKey)
			}
		})
	}
}

func TestLoadFromPath_Invalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, configPath, "output:\n  format: xml\n")
	if _, err := LoadFromPath(configPath); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("LoadFromPath() = %v, want ErrInvalidConfig", err)
	}
}

func TestUseColor(t *testing.T) {
	tests := []struct {
		mode     string
		terminal bool
		want     bool
	}{
		{ColorAuto, true, true},
		{ColorAuto, false, false},
		{ColorAlways, false, true},
		{ColorNever, true, false},
	}
	for _, tt := range tests {
		if got := (OutputConfig{Color: tt.mode}).UseColor(tt.terminal); got != tt.want {
			t.Errorf("UseColor(%s, %v) = %v, want %v", tt.mode, tt.terminal, got, tt.want)
		}
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	if result := expandEnv("prefix-${TEST_VAR}-suffix"); result != "prefix-expanded-value-suffix" {
		t.Errorf("expected 'prefix-expanded-value-suffix', got %q", result)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	if dir := getUserConfigDir(); dir != "/custom/config/consumer-contracts" {
		t.Errorf("expected %q, got %q", "/custom/config/consumer-contracts", dir)
	}
}

func TestEntries(t *testing.T) {
	entries := Default().Entries()
	if len(entries) != 10 {
		t.Fatalf("len(Entries) = %d, want 10", len(entries))
	}
	if entries[0] != (Entry{"contracts.dir", "contracts"}) {
		t.Errorf("first entry = %+v", entries[0])
	}
}
