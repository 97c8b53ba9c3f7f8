package identity

import "time"

// SourceRef is one (source, sourceId) pair linked to a canonical identity.
type SourceRef struct {
	Source   string
	SourceID string
}

// Identity is the resolver's record for one canonical ID: the entity type,
// every source pair linked to it, and bookkeeping timestamps.
//
// A given (source, sourceId, entityType) triple maps to exactly one canonical
// ID; moving it requires an explicit merge. An identity is "destroyed" only
// by merge, which absorbs its source pairs into the survivor and leaves a
// tombstone behind.
type Identity struct {
	EntityType  string
	CanonicalID string
	SourceIDs   []SourceRef
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Tombstone records that a canonical ID was merged into a survivor.
type Tombstone struct {
	EntityType  string
	CanonicalID string
	SurvivorID  string
	Reason      string
	CreatedAt   time.Time
}
