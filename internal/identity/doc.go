// Package identity assigns every real-world catalog entity a stable
// canonical identifier and owns the mapping between (source, sourceId)
// pairs and canonical IDs.
//
// Canonical IDs are derived, not allocated: a hash over the mapping's key
// fields, normalized so that casing and Unicode representation never split
// an identity. The SQLite store enforces the one-canonical-ID-per-source-pair
// invariant and records merges as tombstones so retired IDs stay resolvable.
package identity
