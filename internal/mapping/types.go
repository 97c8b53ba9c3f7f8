package mapping

import "strings"

// TransformKind names the operation applied when copying a source field onto
// the shared schema.
type TransformKind string

const (
	TransformDirect TransformKind = "direct"
	TransformSplit  TransformKind = "split"
	TransformJoin   TransformKind = "join"
	TransformLookup TransformKind = "lookup"
	TransformCustom TransformKind = "custom"
)

// FieldMapping declares how one raw field maps onto one target field.
// Pure, immutable configuration.
type FieldMapping struct {
	SourceField string
	TargetField string
	Transform   TransformKind
	// Config carries transform parameters: "delimiter" for split/join,
	// "table" for lookup, "name" for custom.
	Config map[string]string
}

// RuleKind names a quality-scoring check.
type RuleKind string

const (
	RuleRequired RuleKind = "required"
	RuleLength   RuleKind = "length"
	RuleFormat   RuleKind = "format"
)

// QualityRule scores one normalized field. Pattern applies to format rules.
type QualityRule struct {
	Field   string
	Rule    RuleKind
	Weight  float64
	Pattern string
}

// EntityMapping is the declarative, per-(source, entity type) configuration of
// field transforms, canonical key fields, deduplication keys, and quality rules.
type EntityMapping struct {
	Source     string
	EntityType string
	Fields     []FieldMapping
	// KeyFields are the normalized fields hashed into the canonical ID.
	// Carried on the mapping so onboarding a source never touches code.
	KeyFields []string
	// DeduplicationFields feed the duplicate matcher.
	DeduplicationFields []string
	QualityRules        []QualityRule
}

// Key returns the registry key for a (source, entityType) pair.
func Key(source, entityType string) string {
	return strings.ToLower(strings.TrimSpace(source)) + ":" + strings.ToLower(strings.TrimSpace(entityType))
}

// Valid reports whether the mapping names a source and entity type.
func (m EntityMapping) Valid() bool {
	return strings.TrimSpace(m.Source) != "" && strings.TrimSpace(m.EntityType) != ""
}
