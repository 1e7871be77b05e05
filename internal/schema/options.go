// Package schema validates canonical HTTP responses against declared
// response schemas and reports the first violated constraint.
package schema

// Presence controls whether declared fields must exist when a schema does
// not say otherwise.
type Presence string

const (
	// PresenceRequired makes every declared field mandatory by default.
	PresenceRequired Presence = "required"
	// PresenceOptional lets declared fields be absent by default.
	PresenceOptional Presence = "optional"
)

// Options configures a validation run. Nil fields inherit from the defaults.
type Options struct {
	// AllowUnknown permits object keys that the schema does not declare.
	AllowUnknown *bool `json:"allowUnknown,omitempty" yaml:"allowUnknown,omitempty"`
	// Presence is the default presence of declared fields.
	Presence Presence `json:"presence,omitempty" yaml:"presence,omitempty"`
	// Convert lets numeric and boolean strings satisfy number and boolean schemas.
	Convert *bool `json:"convert,omitempty" yaml:"convert,omitempty"`
}

// DefaultOptions returns the engine defaults: unknown keys allowed and every
// declared field required.
func DefaultOptions() Options {
	return Options{
		AllowUnknown: Bool(true),
		Presence:     PresenceRequired,
		Convert:      Bool(true),
	}
}

// Merge returns o with every field set in over replacing the one in o.
func (o Options) Merge(over Options) Options {
	merged := o
	if over.AllowUnknown != nil {
		merged.AllowUnknown = Bool(*over.AllowUnknown)
	}
	if over.Presence != "" {
		merged.Presence = over.Presence
	}
	if over.Convert != nil {
		merged.Convert = Bool(*over.Convert)
	}
	return merged
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// settings is the resolved form of Options used while walking a schema.
type settings struct {
	allowUnknown bool
	required     bool
	convert      bool
}

func (o Options) resolve() settings {
	full := DefaultOptions().Merge(o)
	return settings{
		allowUnknown: *full.AllowUnknown,
		required:     full.Presence != PresenceOptional,
		convert:      *full.Convert,
	}
}
