package schema

import "strings"

// ResponseSpec lists the schemas for each part of a canonical response.
// Nil parts are not checked.
type ResponseSpec struct {
	Status     Schema
	StatusText Schema
	Headers    Schema
	Body       Schema
	URL        Schema
}

// Response builds the top-level schema for a canonical response. Status is
// checked first, then status text, headers, body and url. Header key names
// are lower-cased to match canonical response headers.
func Response(spec ResponseSpec) *ObjectSchema {
	obj := Object()
	if spec.Status != nil {
		obj.Keys(Key("status", spec.Status))
	}
	if spec.StatusText != nil {
		obj.Keys(Key("statusText", spec.StatusText))
	}
	if spec.Headers != nil {
		obj.Keys(Key("headers", lowerKeys(spec.Headers)))
	}
	if spec.Body != nil {
		obj.Keys(Key("body", spec.Body))
	}
	if spec.URL != nil {
		obj.Keys(Key("url", spec.URL))
	}
	return obj
}

// Status returns a schema accepting exactly the given status codes.
func Status(codes ...int) *NumberSchema {
	n := Number().Integer()
	for _, c := range codes {
		n.Valid(float64(c))
	}
	return n
}

// StatusRange returns a schema accepting status codes in [lo, hi].
func StatusRange(lo, hi int) *NumberSchema {
	return Number().Integer().Min(float64(lo)).Max(float64(hi))
}

func lowerKeys(s Schema) Schema {
	obj, ok := s.(*ObjectSchema)
	if !ok {
		return s
	}
	out := &ObjectSchema{base: obj.base, unknown: obj.unknown}
	for _, f := range obj.fields {
		out.fields = append(out.fields, Key(strings.ToLower(f.Name), f.Schema))
	}
	return out
}
