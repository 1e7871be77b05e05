package schema

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Schema is a node in a response schema tree. Builders modify and return
// their receiver so constraints can be chained.
type Schema interface {
	check(v any, present bool, label string, s settings) *Failure
	common() *base
}

// base holds the constraints every schema type shares.
type base struct {
	presence Presence
	nullable bool
	valids   []any
}

func (b *base) common() *base { return b }

func (b *base) isRequired(s settings) bool {
	switch b.presence {
	case PresenceRequired:
		return true
	case PresenceOptional:
		return false
	default:
		return s.required
	}
}

// precheck applies presence, null and allowed-value rules. It reports done
// when no further type checks should run.
func (b *base) precheck(v any, present bool, label string, s settings) (bool, *Failure) {
	if !present {
		if b.isRequired(s) {
			return true, fail(label, "is required", nil, true)
		}
		return true, nil
	}
	if v == nil && b.nullable {
		return true, nil
	}
	if len(b.valids) == 0 {
		return false, nil
	}
	for _, allowed := range b.valids {
		if sameValue(allowed, v) {
			return true, nil
		}
	}
	if len(b.valids) == 1 {
		return true, fail(label, "must be ["+renderValue(b.valids[0])+"]", v, false)
	}
	parts := make([]string, len(b.valids))
	for i, allowed := range b.valids {
		parts[i] = renderValue(allowed)
	}
	return true, fail(label, "must be one of ["+strings.Join(parts, ", ")+"]", v, false)
}

// Optional marks s as allowed to be absent.
func Optional[S Schema](s S) S {
	s.common().presence = PresenceOptional
	return s
}

// Required marks s as mandatory regardless of the default presence.
func Required[S Schema](s S) S {
	s.common().presence = PresenceRequired
	return s
}

// Nullable lets s accept an explicit null.
func Nullable[S Schema](s S) S {
	s.common().nullable = true
	return s
}

// AnySchema accepts any present value.
type AnySchema struct{ base }

// Any returns a schema that only checks presence.
func Any() *AnySchema { return &AnySchema{} }

// Valid returns a schema that only accepts the given values.
func Valid(values ...any) *AnySchema {
	return &AnySchema{base: base{valids: values}}
}

func (a *AnySchema) check(v any, present bool, label string, s settings) *Failure {
	_, f := a.precheck(v, present, label, s)
	return f
}

// StringSchema matches string values.
type StringSchema struct {
	base
	min, max   int
	pattern    *regexp.Regexp
	allowEmpty bool
}

// String returns a schema matching non-empty strings.
func String() *StringSchema { return &StringSchema{min: -1, max: -1} }

// Min sets the minimum length in characters.
func (st *StringSchema) Min(n int) *StringSchema { st.min = n; return st }

// Max sets the maximum length in characters.
func (st *StringSchema) Max(n int) *StringSchema { st.max = n; return st }

// AllowEmpty lets the empty string match.
func (st *StringSchema) AllowEmpty() *StringSchema { st.allowEmpty = true; return st }

// Pattern requires the value to match re.
func (st *StringSchema) Pattern(re *regexp.Regexp) *StringSchema { st.pattern = re; return st }

// Valid restricts the schema to the given strings.
func (st *StringSchema) Valid(values ...string) *StringSchema {
	for _, v := range values {
		st.valids = append(st.valids, v)
	}
	return st
}

func (st *StringSchema) check(v any, present bool, label string, s settings) *Failure {
	if done, f := st.precheck(v, present, label, s); done {
		return f
	}
	str, ok := v.(string)
	if !ok {
		return fail(label, "must be a string", v, false)
	}
	if str == "" && !st.allowEmpty {
		return fail(label, "is not allowed to be empty", v, false)
	}
	length := utf8.RuneCountInString(str)
	if st.min >= 0 && length < st.min {
		return fail(label, fmt.Sprintf("length must be at least %d characters long", st.min), v, false)
	}
	if st.max >= 0 && length > st.max {
		return fail(label, fmt.Sprintf("length must be less than or equal to %d characters long", st.max), v, false)
	}
	if st.pattern != nil && !st.pattern.MatchString(str) {
		return fail(label, `with value "`+str+`" fails to match the required pattern: /`+st.pattern.String()+"/", v, false)
	}
	return nil
}

// NumberSchema matches numeric values.
type NumberSchema struct {
	base
	integer  bool
	min, max *float64
}

// Number returns a schema matching any number.
func Number() *NumberSchema { return &NumberSchema{} }

// Integer requires the number to have no fractional part.
func (n *NumberSchema) Integer() *NumberSchema { n.integer = true; return n }

// Min sets an inclusive lower bound.
func (n *NumberSchema) Min(f float64) *NumberSchema { n.min = &f; return n }

// Max sets an inclusive upper bound.
func (n *NumberSchema) Max(f float64) *NumberSchema { n.max = &f; return n }

// Valid restricts the schema to the given numbers.
func (n *NumberSchema) Valid(values ...float64) *NumberSchema {
	for _, v := range values {
		n.valids = append(n.valids, v)
	}
	return n
}

func (n *NumberSchema) check(v any, present bool, label string, s settings) *Failure {
	if done, f := n.precheck(v, present, label, s); done {
		return f
	}
	num, ok := toNumber(v, s.convert)
	if !ok {
		return fail(label, "must be a number", v, false)
	}
	if n.integer && math.Trunc(num) != num {
		return fail(label, "must be an integer", v, false)
	}
	if n.min != nil && num < *n.min {
		return fail(label, "must be greater than or equal to "+formatNumber(*n.min), v, false)
	}
	if n.max != nil && num > *n.max {
		return fail(label, "must be less than or equal to "+formatNumber(*n.max), v, false)
	}
	return nil
}

// BooleanSchema matches true and false.
type BooleanSchema struct{ base }

// Boolean returns a schema matching booleans.
func Boolean() *BooleanSchema { return &BooleanSchema{} }

func (b *BooleanSchema) check(v any, present bool, label string, s settings) *Failure {
	if done, f := b.precheck(v, present, label, s); done {
		return f
	}
	switch val := v.(type) {
	case bool:
		return nil
	case string:
		if s.convert && (strings.EqualFold(val, "true") || strings.EqualFold(val, "false")) {
			return nil
		}
	}
	return fail(label, "must be a boolean", v, false)
}

// Field is a named key of an object schema.
type Field struct {
	Name   string
	Schema Schema
}

// Key pairs a key name with its schema.
func Key(name string, s Schema) Field {
	return Field{Name: name, Schema: s}
}

// ObjectSchema matches objects and checks declared keys in declaration order.
type ObjectSchema struct {
	base
	fields  []Field
	unknown *bool
}

// Object returns a schema matching objects with the given keys.
func Object(fields ...Field) *ObjectSchema {
	return &ObjectSchema{fields: fields}
}

// Keys appends declared keys.
func (o *ObjectSchema) Keys(fields ...Field) *ObjectSchema {
	o.fields = append(o.fields, fields...)
	return o
}

// Unknown overrides the AllowUnknown option for this object only.
func (o *ObjectSchema) Unknown(allow bool) *ObjectSchema {
	o.unknown = &allow
	return o
}

func (o *ObjectSchema) check(v any, present bool, label string, s settings) *Failure {
	if done, f := o.precheck(v, present, label, s); done {
		return f
	}
	obj, ok := asObject(v)
	if !ok {
		return fail(label, "must be of type object", v, false)
	}

	declared := make(map[string]struct{}, len(o.fields))
	for _, field := range o.fields {
		declared[field.Name] = struct{}{}
		child, found := obj[field.Name]
		if f := field.Schema.check(child, found, joinKey(label, field.Name), s); f != nil {
			return f
		}
	}

	allowUnknown := s.allowUnknown
	if o.unknown != nil {
		allowUnknown = *o.unknown
	}
	if allowUnknown {
		return nil
	}
	extra := make([]string, 0)
	for key := range obj {
		if _, ok := declared[key]; !ok {
			extra = append(extra, key)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return fail(joinKey(label, extra[0]), "is not allowed", obj[extra[0]], false)
}

// ArraySchema matches arrays.
type ArraySchema struct {
	base
	items    Schema
	min, max int
}

// Array returns a schema matching arrays whose elements match items.
// A nil items schema accepts any element.
func Array(items Schema) *ArraySchema {
	return &ArraySchema{items: items, min: -1, max: -1}
}

// Min sets the minimum number of items.
func (a *ArraySchema) Min(n int) *ArraySchema { a.min = n; return a }

// Max sets the maximum number of items.
func (a *ArraySchema) Max(n int) *ArraySchema { a.max = n; return a }

func (a *ArraySchema) check(v any, present bool, label string, s settings) *Failure {
	if done, f := a.precheck(v, present, label, s); done {
		return f
	}
	items, ok := asArray(v)
	if !ok {
		return fail(label, "must be an array", v, false)
	}
	if a.min >= 0 && len(items) < a.min {
		return fail(label, fmt.Sprintf("must contain at least %d items", a.min), v, false)
	}
	if a.max >= 0 && len(items) > a.max {
		return fail(label, fmt.Sprintf("must contain less than or equal to %d items", a.max), v, false)
	}
	if a.items == nil {
		return nil
	}
	for i, item := range items {
		if f := a.items.check(item, true, label+"["+strconv.Itoa(i)+"]", s); f != nil {
			return f
		}
	}
	return nil
}

func joinKey(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	}
	return nil, false
}

func asArray(v any) ([]any, bool) {
	if arr, ok := v.([]any); ok {
		return arr, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
