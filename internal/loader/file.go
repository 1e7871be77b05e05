package loader

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"go.yaml.in/yaml/v3"
)

// Duration accepts either a Go duration string ("1.5s") or a number of
// milliseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	var parsed time.Duration
	switch node.Tag {
	case "!!null":
		parsed = 0
	case "!!int", "!!float":
		ms, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
		}
		parsed = time.Duration(ms * float64(time.Millisecond))
	default:
		var err error
		if parsed, err = time.ParseDuration(node.Value); err != nil {
			return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
		}
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: duration must not be negative", node.Line)
	}
	*d = Duration(parsed)
	return nil
}

type fileContract struct {
	Name       string        `yaml:"name"`
	Consumer   string        `yaml:"consumer"`
	Request    *fileRequest  `yaml:"request"`
	Response   yaml.Node     `yaml:"response"`
	Retries    yaml.Node     `yaml:"retries"`
	RetryDelay Duration      `yaml:"retryDelay"`
	Before     *fileHook     `yaml:"before"`
	After      *fileHook     `yaml:"after"`
	Validation *fileValidate `yaml:"validation"`
}

var contractFields = map[string]bool{
	"name": true, "consumer": true, "request": true, "response": true,
	"retries": true, "retryDelay": true, "before": true, "after": true,
	"validation": true,
}

type fileRequest struct {
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Query   map[string]string `yaml:"query"`
	Body    any               `yaml:"body"`
	Timeout Duration          `yaml:"timeout"`
}

type fileHook struct {
	Command string   `yaml:"command"`
	Dir     string   `yaml:"dir"`
	Timeout Duration `yaml:"timeout"`
}

type fileBackoff struct {
	MaxRetries   int      `yaml:"maxRetries"`
	Backoff      string   `yaml:"backoff"`
	Delay        Duration `yaml:"delay"`
	MaxDelay     Duration `yaml:"maxDelay"`
	StopOnStatus []int    `yaml:"stopOnStatus"`
}

type fileValidate struct {
	AllowUnknown *bool  `yaml:"allowUnknown"`
	Presence     string `yaml:"presence"`
	Convert      *bool  `yaml:"convert"`
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expand replaces ${VAR} references with environment values. An unset
// variable is an error.
func expand(s string) (string, error) {
	var missing string
	out := envRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := envRef.FindStringSubmatch(ref)[1]
		v, ok := os.LookupEnv(name)
		if !ok && missing == "" {
			missing = name
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("environment variable %s is not set", missing)
	}
	return out, nil
}

func expandMap(m map[string]string) error {
	for k, v := range m {
		expanded, err := expand(v)
		if err != nil {
			return err
		}
		m[k] = expanded
	}
	return nil
}

func expandAny(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return expand(t)
	case map[string]any:
		for k, item := range t {
			expanded, err := expandAny(item)
			if err != nil {
				return nil, err
			}
			t[k] = expanded
		}
	case []any:
		for i, item := range t {
			expanded, err := expandAny(item)
			if err != nil {
				return nil, err
			}
			t[i] = expanded
		}
	}
	return v, nil
}
