package staging

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a staging record.
//
// Status only advances pending -> processing -> {normalized, failed}. The one
// sanctioned reset is Requeue, which moves failed records back to pending as
// an explicit operator action.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusNormalized Status = "normalized"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusNormalized,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status ends the record's state machine.
func (s Status) IsTerminal() bool {
	return s == StatusNormalized || s == StatusFailed
}

// Record is a raw ingestion payload persisted in SQLite awaiting normalization.
//
// Records are never deleted; normalized and failed rows remain as the audit
// trail alongside the catalog's ingest log.
type Record struct {
	ID            string
	Source        string
	SourceID      string
	EntityType    string
	RawData       map[string]any
	Checksum      string
	Status        Status
	ErrorMessage  string
	ReceivedAt    time.Time
	ProcessedAt   *time.Time
	LastHeartbeat *time.Time
	UpdatedAt     time.Time
}

// SetFailed marks the record as failed with the given error message.
func (r *Record) SetFailed(message string) {
	r.Status = StatusFailed
	r.ErrorMessage = message
	r.LastHeartbeat = nil
}

// HealthSummary describes aggregated staging counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Normalized int
	Failed     int
}
