package config

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

var logLevels = []string{"error", "warn", "warning", "info", "verbose", "debug", "trace"}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(key, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s %s", ErrInvalidConfig, key, fmt.Sprintf(format, args...)))
	}

	if c.Contracts.Dir == "" {
		invalid("contracts.dir", "must not be empty")
	}
	if len(c.Contracts.Extensions) == 0 {
		invalid("contracts.extensions", "must list at least one extension")
	}
	if c.Run.Concurrency < 1 {
		invalid("run.concurrency", "must be at least 1, got %d", c.Run.Concurrency)
	}
	if c.Request.Timeout < 0 {
		invalid("request.timeout", "must not be negative, got %s", c.Request.Timeout)
	}
	if c.Request.MaxIdleConnsPerHost < 0 {
		invalid("request.max_idle_conns_per_host", "must not be negative, got %d", c.Request.MaxIdleConnsPerHost)
	}
	if !slices.Contains([]string{FormatText, FormatJSON}, c.Output.Format) {
		invalid("output.format", "must be text or json, got %q", c.Output.Format)
	}
	if !slices.Contains([]string{ColorAuto, ColorAlways, ColorNever}, c.Output.Color) {
		invalid("output.color", "must be auto, always or never, got %q", c.Output.Color)
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		invalid("log.level", "must be one of %s, got %q", strings.Join(logLevels, ", "), c.Log.Level)
	}
	if c.Watch.Interval <= 0 {
		invalid("watch.interval", "must be positive, got %s", c.Watch.Interval)
	}
	return errors.Join(errs...)
}

// UseColor reports whether reports should be colored. isTerminal tells
// whether stdout is a terminal, used in auto mode.
func (o OutputConfig) UseColor(isTerminal bool) bool {
	switch o.Color {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	return isTerminal
}

// Entry is one effective setting.
type Entry struct {
	Key   string
	Value string
}

// Entries lists every setting in a stable order, for display.
func (c *Config) Entries() []Entry {
	return []Entry{
		{"contracts.dir", c.Contracts.Dir},
		{"contracts.extensions", strings.Join(c.Contracts.Extensions, ", ")},
		{"run.concurrency", strconv.Itoa(c.Run.Concurrency)},
		{"request.timeout", c.Request.Timeout.String()},
		{"request.max_idle_conns_per_host", strconv.Itoa(c.Request.MaxIdleConnsPerHost)},
		{"output.format", c.Output.Format},
		{"output.color", c.Output.Color},
		{"log.level", c.Log.Level},
		{"watch.interval", c.Watch.Interval.String()},
		{"watch.metrics_addr", c.Watch.MetricsAddr},
	}
}
