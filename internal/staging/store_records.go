package staging

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage inserts a raw record with status pending and returns it.
//
// Repeat checksums are accepted on purpose: duplicate-in ingestion is allowed
// and filtered downstream during normalization, never at the door.
func (s *Store) Stage(ctx context.Context, source, sourceID, entityType string, rawData map[string]any, checksum string) (*Record, error) {
	source = strings.TrimSpace(source)
	sourceID = strings.TrimSpace(sourceID)
	entityType = strings.TrimSpace(entityType)
	if source == "" || sourceID == "" || entityType == "" {
		return nil, errors.New("source, source id, and entity type are required")
	}
	if rawData == nil {
		rawData = map[string]any{}
	}

	rawJSON, err := json.Marshal(rawData)
	if err != nil {
		return nil, fmt.Errorf("marshal raw data: %w", err)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	id := uuid.NewString()

	_, err = s.execWithRetry(
		ctx,
		`INSERT INTO staging_records (
            id, source, source_id, entity_type, raw_data, checksum,
            status, received_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		source,
		sourceID,
		entityType,
		string(rawJSON),
		checksum,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert staging record: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a staging record by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM staging_records WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get staging record: %w", err)
	}
	return record, nil
}

// List returns records filtered by status set (or all records when no status
// is provided), in insertion order, capped at limit when limit is positive.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM staging_records`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY received_at, rowid`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list staging records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ClaimNext atomically transitions the oldest pending record to processing
// and returns it. Returns nil when no pending record exists.
//
// The pending->processing transition is the pipeline's only hard mutual
// exclusion point: the conditional UPDATE guarantees at most one worker ever
// claims a given record, so concurrent workers race safely.
func (s *Store) ClaimNext(ctx context.Context) (*Record, error) {
	ctx = ensureContext(ctx)
	for {
		row := s.db.QueryRowContext(
			ctx,
			`SELECT id FROM staging_records WHERE status = ? ORDER BY received_at, rowid LIMIT 1`,
			StatusPending,
		)
		var id string
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("next pending record: %w", err)
		}

		now := time.Now().UTC().Format(time.RFC3339Nano)
		res, err := s.execWithRetry(
			ctx,
			`UPDATE staging_records
             SET status = ?, last_heartbeat = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusProcessing,
			now,
			now,
			id,
			StatusPending,
		)
		if err != nil {
			return nil, fmt.Errorf("claim staging record: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			// Lost the race to another worker; try the next pending record.
			continue
		}
		return s.GetByID(ctx, id)
	}
}

// ClaimBatch claims up to limit pending records in insertion order. Each
// record goes through the same conditional UPDATE as ClaimNext, so a batch
// claim never double-claims against concurrent workers. Returns fewer than
// limit records (possibly none) when the pending queue runs dry.
func (s *Store) ClaimBatch(ctx context.Context, limit int) ([]*Record, error) {
	if limit < 1 {
		limit = 1
	}
	records := make([]*Record, 0, limit)
	for len(records) < limit {
		record, err := s.ClaimNext(ctx)
		if err != nil {
			return records, err
		}
		if record == nil {
			break
		}
		records = append(records, record)
	}
	return records, nil
}

// Claim attempts the pending->processing transition for one specific record.
// Returns false when the record is missing, already claimed, or terminal, so
// a targeted normalization of a finished record is a no-op.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE staging_records
         SET status = ?, last_heartbeat = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusProcessing,
		now,
		now,
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim staging record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MarkNormalized finishes a processing record successfully.
func (s *Store) MarkNormalized(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE staging_records
         SET status = ?, processed_at = ?, last_heartbeat = NULL, error_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusNormalized,
		now,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark normalized: %w", err)
	}
	return requireTransition(res, id, StatusNormalized)
}

// MarkFailed finishes a processing record with a terminal error. The message
// must be non-empty; no failure is recorded without a reason.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return errors.New("failure message must not be empty")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE staging_records
         SET status = ?, processed_at = ?, error_message = ?, last_heartbeat = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusFailed,
		now,
		message,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireTransition(res, id, StatusFailed)
}

// Requeue moves failed records back to pending for reprocessing. With no IDs
// every failed record is requeued. Returns the number of records moved.
func (s *Store) Requeue(ctx context.Context, ids ...string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE staging_records
             SET status = ?, error_message = NULL, processed_at = NULL, updated_at = ?
             WHERE status = ?`,
			StatusPending,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("requeue failed records: %w", err)
		}
		return res.RowsAffected()
	}

	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusPending, now)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusFailed)
	query := `UPDATE staging_records
        SET status = ?, error_message = NULL, processed_at = NULL, updated_at = ?
        WHERE id IN (` + makePlaceholders(len(ids)) + `) AND status = ?`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue selected records: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight record.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.execWithRetry(
		ctx,
		`UPDATE staging_records SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns processing records whose heartbeats expired
// back to pending so another worker can pick them up.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE staging_records
         SET status = ?, last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending,
		now,
		StatusProcessing,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale records: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of records grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM staging_records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("staging stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates staging state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		case StatusNormalized:
			health.Normalized += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

func requireTransition(res sql.Result, id string, to Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("record %s is not processing; refusing transition to %s", id, to)
	}
	return nil
}

const recordColumns = "id, source, source_id, entity_type, raw_data, checksum, status, error_message, received_at, processed_at, last_heartbeat, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id           string
		source       string
		sourceID     string
		entityType   string
		rawJSON      string
		checksum     string
		statusStr    string
		errorMessage sql.NullString
		receivedRaw  string
		processedRaw sql.NullString
		heartbeatRaw sql.NullString
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&source,
		&sourceID,
		&entityType,
		&rawJSON,
		&checksum,
		&statusStr,
		&errorMessage,
		&receivedRaw,
		&processedRaw,
		&heartbeatRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	record := &Record{
		ID:           id,
		Source:       source,
		SourceID:     sourceID,
		EntityType:   entityType,
		Checksum:     checksum,
		Status:       Status(statusStr),
		ErrorMessage: errorMessage.String,
	}

	if rawJSON != "" {
		if err := json.Unmarshal([]byte(rawJSON), &record.RawData); err != nil {
			return nil, fmt.Errorf("decode raw data for %s: %w", id, err)
		}
	}
	if received, err := parseTimeString(receivedRaw); err == nil {
		record.ReceivedAt = received
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	if processedRaw.Valid {
		if processed, err := parseTimeString(processedRaw.String); err == nil {
			record.ProcessedAt = &processed
		}
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			record.LastHeartbeat = &heartbeat
		}
	}
	return record, nil
}
