package catalog

import "time"

// Entity is one catalog row: the normalized, canonical view of a real-world
// entity assembled from every source that describes it.
type Entity struct {
	EntityType   string
	CanonicalID  string
	Version      int64
	ETag         string
	QualityScore float64
	IsActive     bool
	ExternalIDs  map[string]string
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UpdateEvent is one row of the append-only change feed.
type UpdateEvent struct {
	ID         int64
	EntityType string
	EntityID   string
	Op         string
	Version    int64
	UpdatedAt  time.Time
}

// Update event operations.
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpDeactivate = "deactivate"
)

// IngestEntry is one row of the durable ingest audit trail, recorded per
// staged record regardless of outcome.
type IngestEntry struct {
	ID          int64
	StagingID   string
	Source      string
	SourceID    string
	EntityType  string
	CanonicalID string
	Status      string
	Error       string
	CreatedAt   time.Time
}

// TombstoneEntry records that an entity was merged away or deactivated.
type TombstoneEntry struct {
	EntityType string
	EntityID   string
	Source     string
	Reason     string
	CreatedAt  time.Time
}
