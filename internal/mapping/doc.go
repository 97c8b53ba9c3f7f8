// Package mapping holds the declarative per-source configuration that turns
// raw ingestion payloads into the shared catalog schema.
//
// An EntityMapping bundles everything normalization needs for one
// (source, entity type) pair: ordered field transforms, the key fields that
// derive the canonical ID, the dedup keys fed to the duplicate matcher, and
// weighted quality rules. The Registry is read-only shared configuration at
// normalization time; a record whose pair has no registered mapping fails
// loudly rather than guessing field semantics.
package mapping
