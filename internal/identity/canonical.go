package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// keySeparator joins key-field values before hashing. Unit separator keeps
// field boundaries unambiguous for values containing ordinary punctuation.
const keySeparator = "\x1f"

// canonicalHashWidth is the hex width of the hash portion of a canonical ID.
const canonicalHashWidth = 16

var foldCaser = cases.Fold()

// CanonicalID derives the deterministic canonical identifier for an entity
// from its mapping-configured key fields. Identical key-field values always
// yield the identical ID regardless of process, time, or supplying source.
//
// Missing key fields contribute the empty string rather than being omitted,
// so partial-key collisions stay deterministic. The resulting identity is
// coarser until enrichment fills the fields; the key-field list itself is
// tunable per mapping.
func CanonicalID(entityType string, keyFields []string, normalized map[string]any) string {
	entityType = strings.ToLower(strings.TrimSpace(entityType))

	parts := make([]string, 0, len(keyFields))
	for _, field := range keyFields {
		parts = append(parts, NormalizeKeyValue(normalized[field]))
	}

	sum := sha256.Sum256([]byte(entityType + keySeparator + strings.Join(parts, keySeparator)))
	return entityType + ":" + hex.EncodeToString(sum[:])[:canonicalHashWidth]
}

// NormalizeKeyValue folds a key-field value into its canonical textual form:
// NFKC-normalized, case-folded, and whitespace-trimmed. Records that differ
// only in casing or Unicode representation resolve to the same identity.
func NormalizeKeyValue(value any) string {
	if value == nil {
		return ""
	}
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []string:
		s = strings.Join(v, " ")
	default:
		s = fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = foldCaser.String(s)
	return strings.Join(strings.Fields(s), " ")
}
