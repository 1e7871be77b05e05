package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"
)

// DecodeResponse builds a response schema from its YAML form:
//
//	status: 200            # or [200, 201], "2xx", {type: number, min: 200, max: 299}
//	headers:
//	  content-type: {type: string, pattern: "^application/json"}
//	body:
//	  id: integer
//	  tags: {type: array, items: string}
func DecodeResponse(node *yaml.Node) (*ObjectSchema, error) {
	node = resolve(node)
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: response must be a mapping", node.Line)
	}
	var spec ResponseSpec
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var (
			s   Schema
			err error
		)
		if key.Value == "status" {
			s, err = decodeStatus(value)
		} else {
			s, err = Decode(value)
		}
		if err != nil {
			return nil, fmt.Errorf("response.%s: %w", key.Value, err)
		}
		switch key.Value {
		case "status":
			spec.Status = s
		case "statusText":
			spec.StatusText = s
		case "headers":
			spec.Headers = s
		case "body":
			spec.Body = s
		case "url":
			spec.URL = s
		default:
			return nil, fmt.Errorf("line %d: unsupported response field %q", key.Line, key.Value)
		}
	}
	return Response(spec), nil
}

var statusClass = regexp.MustCompile(`^([1-5])xx$`)

func decodeStatus(node *yaml.Node) (Schema, error) {
	node = resolve(node)
	if node.Kind == yaml.ScalarNode && node.Tag == "!!str" {
		if m := statusClass.FindStringSubmatch(strings.ToLower(node.Value)); m != nil {
			lo, _ := strconv.Atoi(m[1])
			return StatusRange(lo*100, lo*100+99), nil
		}
	}
	return Decode(node)
}

// Decode builds a schema from a YAML node. Scalars are exact values except
// for type names (string, number, integer, boolean, object, array, any);
// sequences list allowed values; mappings with a "type" key carry
// constraints and any other mapping declares object keys.
func Decode(node *yaml.Node) (Schema, error) {
	node = resolve(node)
	switch node.Kind {
	case yaml.ScalarNode:
		return decodeScalar(node)
	case yaml.SequenceNode:
		values, err := scalarValues(node)
		if err != nil {
			return nil, err
		}
		return Valid(values...), nil
	case yaml.MappingNode:
		if typeNode := lookup(node, "type"); typeNode != nil {
			return decodeTyped(node, typeNode.Value)
		}
		return decodeKeys(node)
	}
	return nil, fmt.Errorf("line %d: unsupported schema node", node.Line)
}

func decodeScalar(node *yaml.Node) (Schema, error) {
	if node.Tag == "!!str" {
		s, ok := typeSchema(node.Value)
		if !ok {
			return nil, fmt.Errorf("line %d: unknown schema type %q (use {valid: [...]} to match a literal string)", node.Line, node.Value)
		}
		return s, nil
	}
	v, err := scalarValue(node)
	if err != nil {
		return nil, err
	}
	return Valid(v), nil
}

func typeSchema(name string) (Schema, bool) {
	switch name {
	case "string":
		return String(), true
	case "number":
		return Number(), true
	case "integer":
		return Number().Integer(), true
	case "boolean":
		return Boolean(), true
	case "object":
		return Object(), true
	case "array":
		return Array(nil), true
	case "any":
		return Any(), true
	}
	return nil, false
}

func decodeKeys(node *yaml.Node) (*ObjectSchema, error) {
	obj := Object()
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		child, err := Decode(node.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		obj.Keys(Key(key, child))
	}
	return obj, nil
}

// typedSpec is the constraint mapping of a typed schema node.
type typedSpec struct {
	Type       string    `yaml:"type"`
	Optional   bool      `yaml:"optional"`
	Required   bool      `yaml:"required"`
	Nullable   bool      `yaml:"nullable"`
	Valid      yaml.Node `yaml:"valid"`
	Min        *float64  `yaml:"min"`
	Max        *float64  `yaml:"max"`
	Pattern    string    `yaml:"pattern"`
	AllowEmpty bool      `yaml:"allowEmpty"`
	Keys       yaml.Node `yaml:"keys"`
	Items      yaml.Node `yaml:"items"`
	Unknown    *bool     `yaml:"unknown"`
}

func decodeTyped(node *yaml.Node, typeName string) (Schema, error) {
	var spec typedSpec
	if err := node.Decode(&spec); err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}
	s, ok := typeSchema(typeName)
	if !ok {
		return nil, fmt.Errorf("line %d: unknown schema type %q", node.Line, typeName)
	}

	switch typed := s.(type) {
	case *StringSchema:
		if spec.Min != nil {
			typed.Min(int(*spec.Min))
		}
		if spec.Max != nil {
			typed.Max(int(*spec.Max))
		}
		if spec.AllowEmpty {
			typed.AllowEmpty()
		}
		if spec.Pattern != "" {
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid pattern: %w", node.Line, err)
			}
			typed.Pattern(re)
		}
	case *NumberSchema:
		if spec.Min != nil {
			typed.Min(*spec.Min)
		}
		if spec.Max != nil {
			typed.Max(*spec.Max)
		}
	case *ArraySchema:
		if spec.Min != nil {
			typed.Min(int(*spec.Min))
		}
		if spec.Max != nil {
			typed.Max(int(*spec.Max))
		}
		if spec.Items.Kind != 0 {
			items, err := Decode(&spec.Items)
			if err != nil {
				return nil, fmt.Errorf("items: %w", err)
			}
			typed.items = items
		}
	case *ObjectSchema:
		if spec.Keys.Kind != 0 {
			keys, err := decodeKeys(resolve(&spec.Keys))
			if err != nil {
				return nil, err
			}
			typed.fields = keys.fields
		}
		if spec.Unknown != nil {
			typed.Unknown(*spec.Unknown)
		}
	}

	b := s.common()
	if spec.Valid.Kind != 0 {
		values, err := scalarValues(resolve(&spec.Valid))
		if err != nil {
			return nil, err
		}
		b.valids = values
	}
	if spec.Nullable {
		b.nullable = true
	}
	switch {
	case spec.Optional && spec.Required:
		return nil, fmt.Errorf("line %d: schema cannot be both optional and required", node.Line)
	case spec.Optional:
		b.presence = PresenceOptional
	case spec.Required:
		b.presence = PresenceRequired
	}
	return s, nil
}

func scalarValues(node *yaml.Node) ([]any, error) {
	if node.Kind == yaml.ScalarNode {
		v, err := scalarValue(node)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a list of values", node.Line)
	}
	values := make([]any, 0, len(node.Content))
	for _, item := range node.Content {
		v, err := scalarValue(resolve(item))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func scalarValue(node *yaml.Node) (any, error) {
	if node.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("line %d: expected a scalar value", node.Line)
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}
	return v, nil
}

func lookup(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return resolve(node.Content[i+1])
		}
	}
	return nil
}

func resolve(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		return resolve(node.Content[0])
	}
	return node
}
