// Package catalog is the pipeline's write surface onto the long-lived entity
// catalog: one table per entity type, each row keyed by canonical ID and
// carrying a version, an etag, a quality score, and JSON metadata.
//
// The pipeline only ever upserts. Removal is modeled as is_active=0 plus a
// tombstone row, and every write appends one update_event so downstream
// consumers can follow the change feed. The ingest_log and source_mapping
// tables mirror pipeline state for query-ability and audit.
package catalog
