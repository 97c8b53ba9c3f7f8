// Package staging persists raw ingestion records in SQLite and exposes the
// helpers that drive their lifecycle.
//
// The Store owns the StagingRecord state machine: records enter as pending,
// are claimed into processing through an atomic compare-and-set, and finish
// as normalized or failed. Processing records carry a heartbeat; records
// whose heartbeats expire are reclaimed to pending so a crashed worker never
// strands work. Failed records return to pending only through an explicit
// Requeue.
//
// Treat this package as the single source of truth for staging semantics;
// when the record shape changes, update schema.sql and bump schemaVersion.
package staging
