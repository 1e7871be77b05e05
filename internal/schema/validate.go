package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Failure describes the first constraint a value violated.
type Failure struct {
	// Path locates the field, e.g. "body.items[0].id".
	Path string
	// Message is the constraint description including the quoted label.
	Message string
	// Value is the observed value at Path.
	Value any
	// Missing is set when the field was absent.
	Missing bool
}

// Detail renders the location and observed value of the failure.
func (f *Failure) Detail() string {
	observed := "undefined"
	if !f.Missing {
		observed = renderValue(f.Value)
	}
	return "at res." + f.Path + " got [" + observed + "]"
}

func fail(label, constraint string, v any, missing bool) *Failure {
	if label == "" {
		label = "value"
	}
	return &Failure{
		Path:    label,
		Message: `"` + label + `" ` + constraint,
		Value:   v,
		Missing: missing,
	}
}

// Validate checks value against s and returns nil when it conforms.
// Options are merged over DefaultOptions.
func Validate(value any, s Schema, opts Options) *Failure {
	if s == nil {
		return nil
	}
	return s.check(value, true, "", opts.resolve())
}

// ValidationError is returned when a response does not satisfy its schema.
type ValidationError struct {
	Failure Failure
	// Status is the HTTP status of the response that failed.
	Status int
}

// NewValidationError wraps f for the response that produced it.
func NewValidationError(f *Failure, status int) *ValidationError {
	return &ValidationError{Failure: *f, Status: status}
}

func (e *ValidationError) Error() string {
	return "Contract failed: " + e.Failure.Message
}

// Detail returns "at res.<path> got [<value>]".
func (e *ValidationError) Detail() string {
	return e.Failure.Detail()
}

// renderValue formats an observed value for messages: strings verbatim,
// numbers in shortest decimal form and composites as compact JSON.
func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	}
	if n, ok := toNumber(v, false); ok {
		return formatNumber(n)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "<unprintable>"
	}
	return string(b)
}

func formatNumber(f float64) string {
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// toNumber reports v as a float64. Numeric strings qualify only when
// convert is set.
func toNumber(v any, convert bool) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		if !convert || strings.TrimSpace(n) == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}

func sameValue(want, got any) bool {
	if wn, ok := toNumber(want, false); ok {
		gn, ok := toNumber(got, false)
		return ok && wn == gn
	}
	switch w := want.(type) {
	case nil:
		return got == nil
	case string:
		g, ok := got.(string)
		return ok && g == w
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	}
	return false
}
