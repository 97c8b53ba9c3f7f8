package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Upsert writes one entity keyed by canonical ID. First write inserts the row
// at version 1; later writes replace metadata, union external IDs, bump the
// version, and rotate the etag. Upserted rows are always active; removal goes
// through Deactivate. One update_event is appended per call.
func (s *SQLStore) Upsert(ctx context.Context, entity Entity) (*Entity, error) {
	if entity.CanonicalID == "" {
		return nil, errors.New("canonical id is required")
	}
	table, err := tableFor(entity.EntityType)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	var (
		currentVersion  int64
		existingIDsRaw  string
		existingCreated string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT version, external_ids, created_at FROM `+table+` WHERE canonical_id = ?`,
		entity.CanonicalID,
	).Scan(&currentVersion, &existingIDsRaw, &existingCreated)

	op := OpUpdate
	switch {
	case errors.Is(err, sql.ErrNoRows):
		op = OpCreate
	case err != nil:
		return nil, fmt.Errorf("load current row: %w", err)
	}

	externalIDs := make(map[string]string)
	if op == OpUpdate && existingIDsRaw != "" {
		if err := json.Unmarshal([]byte(existingIDsRaw), &externalIDs); err != nil {
			return nil, fmt.Errorf("decode external ids: %w", err)
		}
	}
	for source, sourceID := range entity.ExternalIDs {
		externalIDs[source] = sourceID
	}

	idsJSON, err := json.Marshal(externalIDs)
	if err != nil {
		return nil, fmt.Errorf("encode external ids: %w", err)
	}
	metadata := entity.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	stored := Entity{
		EntityType:   entity.EntityType,
		CanonicalID:  entity.CanonicalID,
		Version:      currentVersion + 1,
		ETag:         uuid.New().String(),
		QualityScore: entity.QualityScore,
		IsActive:     true,
		ExternalIDs:  externalIDs,
		Metadata:     metadata,
		UpdatedAt:    now,
	}

	if op == OpCreate {
		stored.CreatedAt = now
		_, err = tx.ExecContext(ctx,
			`INSERT INTO `+table+` (canonical_id, version, etag, quality_score, is_active, external_ids, metadata, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?)`,
			stored.CanonicalID, stored.Version, stored.ETag, stored.QualityScore,
			string(idsJSON), string(metaJSON), nowStr, nowStr,
		)
	} else {
		if created, parseErr := time.Parse(time.RFC3339Nano, existingCreated); parseErr == nil {
			stored.CreatedAt = created
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE `+table+` SET version = ?, etag = ?, quality_score = ?, is_active = 1, external_ids = ?, metadata = ?, updated_at = ?
			 WHERE canonical_id = ?`,
			stored.Version, stored.ETag, stored.QualityScore,
			string(idsJSON), string(metaJSON), nowStr, stored.CanonicalID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("%s entity row: %w", op, err)
	}

	if err := appendEvent(ctx, tx, entity.EntityType, entity.CanonicalID, op, stored.Version, nowStr); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return &stored, nil
}

// Get returns one catalog entity, or nil when the canonical ID is unknown.
func (s *SQLStore) Get(ctx context.Context, entityType, canonicalID string) (*Entity, error) {
	table, err := tableFor(entityType)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT canonical_id, version, etag, quality_score, is_active, external_ids, metadata, created_at, updated_at
		 FROM `+table+` WHERE canonical_id = ?`,
		canonicalID,
	)

	var (
		entity     Entity
		active     int
		idsRaw     string
		metaRaw    string
		createdRaw string
		updatedRaw string
	)
	err = row.Scan(&entity.CanonicalID, &entity.Version, &entity.ETag, &entity.QualityScore,
		&active, &idsRaw, &metaRaw, &createdRaw, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}

	entity.EntityType = entityType
	entity.IsActive = active != 0
	if err := json.Unmarshal([]byte(idsRaw), &entity.ExternalIDs); err != nil {
		return nil, fmt.Errorf("decode external ids: %w", err)
	}
	if err := json.Unmarshal([]byte(metaRaw), &entity.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if created, parseErr := time.Parse(time.RFC3339Nano, createdRaw); parseErr == nil {
		entity.CreatedAt = created
	}
	if updated, parseErr := time.Parse(time.RFC3339Nano, updatedRaw); parseErr == nil {
		entity.UpdatedAt = updated
	}
	return &entity, nil
}

// Deactivate soft-removes an entity: is_active=0, version bump, tombstone row,
// and one deactivate update_event. Deactivating an unknown ID is an error so
// merges cannot silently skip a loser.
func (s *SQLStore) Deactivate(ctx context.Context, entityType, canonicalID, source, reason string) error {
	table, err := tableFor(entityType)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin deactivate tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	var version int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM `+table+` WHERE canonical_id = ?`, canonicalID,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("entity %s/%s not found", entityType, canonicalID)
	}
	if err != nil {
		return fmt.Errorf("load entity: %w", err)
	}
	version++

	if _, err := tx.ExecContext(ctx,
		`UPDATE `+table+` SET is_active = 0, version = ?, etag = ?, updated_at = ? WHERE canonical_id = ?`,
		version, uuid.New().String(), now, canonicalID,
	); err != nil {
		return fmt.Errorf("deactivate entity: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tombstone (entity_type, entity_id, source, reason, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(entity_type, entity_id) DO UPDATE SET source = excluded.source, reason = excluded.reason, created_at = excluded.created_at`,
		entityType, canonicalID, nullableString(source), nullableString(reason), now,
	); err != nil {
		return fmt.Errorf("insert tombstone: %w", err)
	}

	if err := appendEvent(ctx, tx, entityType, canonicalID, OpDeactivate, version, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit deactivate: %w", err)
	}
	return nil
}

// MirrorSourceLink upserts one row in source_mapping so the canonical mapping
// is queryable alongside the catalog without opening the identity database.
func (s *SQLStore) MirrorSourceLink(ctx context.Context, source, sourceID, entityType, canonicalID string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_mapping (source, source_id, entity_type, entity_id, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source, source_id, entity_type) DO UPDATE SET entity_id = excluded.entity_id, updated_at = excluded.updated_at`,
		source, sourceID, entityType, canonicalID, now,
	)
	if err != nil {
		return fmt.Errorf("mirror source link: %w", err)
	}
	return nil
}

// RecordIngest appends one row to the ingest audit trail.
func (s *SQLStore) RecordIngest(ctx context.Context, entry IngestEntry) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_log (staging_id, source, source_id, entity_type, canonical_id, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.StagingID, entry.Source, entry.SourceID, entry.EntityType,
		nullableString(entry.CanonicalID), entry.Status, nullableString(entry.Error), now,
	)
	if err != nil {
		return fmt.Errorf("record ingest: %w", err)
	}
	return nil
}

// EventsFor returns the change feed for one entity, oldest first.
func (s *SQLStore) EventsFor(ctx context.Context, entityType, canonicalID string) ([]UpdateEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_type, entity_id, op, version, updated_at FROM update_event
		 WHERE entity_type = ? AND entity_id = ? ORDER BY id`,
		entityType, canonicalID,
	)
	if err != nil {
		return nil, fmt.Errorf("list update events: %w", err)
	}
	defer rows.Close()

	var events []UpdateEvent
	for rows.Next() {
		var (
			event      UpdateEvent
			updatedRaw string
		)
		if err := rows.Scan(&event.ID, &event.EntityType, &event.EntityID, &event.Op, &event.Version, &updatedRaw); err != nil {
			return nil, err
		}
		if updated, parseErr := time.Parse(time.RFC3339Nano, updatedRaw); parseErr == nil {
			event.UpdatedAt = updated
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// IngestHistory returns audit rows for one staging record, oldest first.
func (s *SQLStore) IngestHistory(ctx context.Context, stagingID string) ([]IngestEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, staging_id, source, source_id, entity_type, canonical_id, status, error, created_at
		 FROM ingest_log WHERE staging_id = ? ORDER BY id`,
		stagingID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ingest log: %w", err)
	}
	defer rows.Close()

	var entries []IngestEntry
	for rows.Next() {
		var (
			entry       IngestEntry
			canonicalID sql.NullString
			errMsg      sql.NullString
			createdRaw  string
		)
		if err := rows.Scan(&entry.ID, &entry.StagingID, &entry.Source, &entry.SourceID,
			&entry.EntityType, &canonicalID, &entry.Status, &errMsg, &createdRaw); err != nil {
			return nil, err
		}
		entry.CanonicalID = canonicalID.String
		entry.Error = errMsg.String
		if created, parseErr := time.Parse(time.RFC3339Nano, createdRaw); parseErr == nil {
			entry.CreatedAt = created
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Tombstone returns the tombstone for an entity, or nil when it is live.
func (s *SQLStore) Tombstone(ctx context.Context, entityType, canonicalID string) (*TombstoneEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT entity_type, entity_id, source, reason, created_at FROM tombstone
		 WHERE entity_type = ? AND entity_id = ?`,
		entityType, canonicalID,
	)
	var (
		entry      TombstoneEntry
		source     sql.NullString
		reason     sql.NullString
		createdRaw string
	)
	err := row.Scan(&entry.EntityType, &entry.EntityID, &source, &reason, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tombstone: %w", err)
	}
	entry.Source = source.String
	entry.Reason = reason.String
	if created, parseErr := time.Parse(time.RFC3339Nano, createdRaw); parseErr == nil {
		entry.CreatedAt = created
	}
	return &entry, nil
}

func appendEvent(ctx context.Context, tx *sql.Tx, entityType, entityID, op string, version int64, now string) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO update_event (entity_type, entity_id, op, version, updated_at) VALUES (?, ?, ?, ?, ?)`,
		entityType, entityID, op, version, now,
	); err != nil {
		return fmt.Errorf("append update event: %w", err)
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
