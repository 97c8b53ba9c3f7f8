package mapping

import (
	"fmt"
	"strings"
)

const defaultDelimiter = ","

// LookupResolver resolves a raw value against an external reference table.
// Production deployments inject one; the zero default passes values through.
type LookupResolver interface {
	Resolve(table string, value any) (any, error)
}

// CustomTransform applies a named transform outside the built-in set.
type CustomTransform interface {
	Transform(name string, value any) (any, error)
}

// Transformer applies an ordered list of field mappings to raw data.
// Lookups and custom transforms default to identity when no implementation
// is supplied.
type Transformer struct {
	Lookup LookupResolver
	Custom CustomTransform
}

// Apply maps rawData onto the shared schema. Fields absent from rawData are
// omitted from the output; no defaulting happens here.
func (t Transformer) Apply(rawData map[string]any, fields []FieldMapping) (map[string]any, error) {
	normalized := make(map[string]any, len(fields))
	for _, field := range fields {
		value, ok := rawData[field.SourceField]
		if !ok {
			continue
		}
		transformed, err := t.applyOne(field, value)
		if err != nil {
			return nil, fmt.Errorf("transform field %s: %w", field.SourceField, err)
		}
		normalized[field.TargetField] = transformed
	}
	return normalized, nil
}

func (t Transformer) applyOne(field FieldMapping, value any) (any, error) {
	switch field.Transform {
	case TransformDirect, "":
		return value, nil
	case TransformSplit:
		return splitValue(value, delimiter(field)), nil
	case TransformJoin:
		return joinValue(value, delimiter(field)), nil
	case TransformLookup:
		if t.Lookup == nil {
			return value, nil
		}
		return t.Lookup.Resolve(field.Config["table"], value)
	case TransformCustom:
		if t.Custom == nil {
			return value, nil
		}
		return t.Custom.Transform(field.Config["name"], value)
	default:
		return nil, fmt.Errorf("unknown transform kind %q", field.Transform)
	}
}

func delimiter(field FieldMapping) string {
	if d, ok := field.Config["delimiter"]; ok && d != "" {
		return d
	}
	return defaultDelimiter
}

// splitValue turns a delimited string into trimmed parts. Non-string input
// passes through unchanged.
func splitValue(value any, delim string) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	parts := strings.Split(s, delim)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// joinValue turns a sequence into a delimited string. Non-sequence input
// passes through unchanged.
func joinValue(value any, delim string) any {
	switch seq := value.(type) {
	case []string:
		return strings.Join(seq, delim)
	case []any:
		parts := make([]string, 0, len(seq))
		for _, item := range seq {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, delim)
	default:
		return value
	}
}
