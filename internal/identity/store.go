package identity

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"libretto/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrLinkConflict reports that a (source, sourceId, entityType) triple is
// already linked to a different canonical ID. Relinking requires a merge.
var ErrLinkConflict = errors.New("source pair linked to a different canonical id")

// Store owns the canonical-ID <-> source-ID mapping backed by SQLite.
//
// Link and AbsorbInto run inside immediate transactions so concurrent calls
// targeting the same canonical ID serialize; a partial relink is never
// observable.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the identity database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	// Pragmas ride the DSN so every pooled connection gets them, and
	// _txlock=immediate makes write transactions take the write lock at
	// BEGIN, where busy_timeout applies. A deferred transaction upgrading
	// read->write under concurrency fails with SQLITE_BUSY immediately.
	dbPath := filepath.Join(cfg.Paths.DataDir, "identity.db")
	dsn := "file:" + dbPath + "?_txlock=immediate" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

// FindExisting returns the canonical ID a (source, sourceId, entityType)
// triple is linked to, or empty when the pair is unknown. Tombstoned IDs
// are followed to their survivor.
func (s *Store) FindExisting(ctx context.Context, source, sourceID, entityType string) (string, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT canonical_id FROM source_links WHERE source = ? AND source_id = ? AND entity_type = ?`,
		source, sourceID, entityType,
	)
	var canonicalID string
	if err := row.Scan(&canonicalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("find existing link: %w", err)
	}
	return s.resolveAlias(ctx, canonicalID)
}

// resolveAlias follows tombstone redirects to the surviving canonical ID.
func (s *Store) resolveAlias(ctx context.Context, canonicalID string) (string, error) {
	for i := 0; i < 16; i++ {
		row := s.db.QueryRowContext(
			ctx,
			`SELECT survivor_id FROM identity_tombstones WHERE canonical_id = ?`,
			canonicalID,
		)
		var survivor string
		if err := row.Scan(&survivor); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return canonicalID, nil
			}
			return "", fmt.Errorf("resolve tombstone: %w", err)
		}
		canonicalID = survivor
	}
	return "", fmt.Errorf("tombstone chain too deep for %s", canonicalID)
}

// Link associates a (source, sourceId) pair with a canonical identity,
// creating the identity record on first use. Linking the same pair to the
// same ID twice is a no-op; linking it to a different ID without a merge
// fails with ErrLinkConflict.
func (s *Store) Link(ctx context.Context, canonicalID, entityType, source, sourceID string) error {
	if canonicalID == "" || entityType == "" || source == "" || sourceID == "" {
		return errors.New("canonical id, entity type, source, and source id are required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin link tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)

	var existing string
	err = tx.QueryRowContext(
		ctx,
		`SELECT canonical_id FROM source_links WHERE source = ? AND source_id = ? AND entity_type = ?`,
		source, sourceID, entityType,
	).Scan(&existing)
	switch {
	case err == nil:
		if existing == canonicalID {
			return nil
		}
		return fmt.Errorf("%w: %s/%s/%s already -> %s, refused -> %s",
			ErrLinkConflict, source, sourceID, entityType, existing, canonicalID)
	case errors.Is(err, sql.ErrNoRows):
	default:
		return fmt.Errorf("check existing link: %w", err)
	}

	res, err := tx.ExecContext(
		ctx,
		`UPDATE canonical_identities SET updated_at = ? WHERE canonical_id = ?`,
		now, canonicalID,
	)
	if err != nil {
		return fmt.Errorf("touch identity: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if affected == 0 {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO canonical_identities (canonical_id, entity_type, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			canonicalID, entityType, now, now,
		); err != nil {
			return fmt.Errorf("create identity: %w", err)
		}
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO source_links (source, source_id, entity_type, canonical_id, linked_at) VALUES (?, ?, ?, ?, ?)`,
		source, sourceID, entityType, canonicalID, now,
	); err != nil {
		return fmt.Errorf("insert link: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit link: %w", err)
	}
	return nil
}

// Get returns a canonical identity with its linked source pairs, or nil when
// the ID is unknown.
func (s *Store) Get(ctx context.Context, canonicalID string) (*Identity, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT canonical_id, entity_type, created_at, updated_at FROM canonical_identities WHERE canonical_id = ?`,
		canonicalID,
	)
	var (
		id         Identity
		createdRaw string
		updatedRaw string
	)
	if err := row.Scan(&id.CanonicalID, &id.EntityType, &createdRaw, &updatedRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		id.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		id.UpdatedAt = updated
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT source, source_id FROM source_links WHERE canonical_id = ? ORDER BY linked_at, rowid`,
		canonicalID,
	)
	if err != nil {
		return nil, fmt.Errorf("list source links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ref SourceRef
		if err := rows.Scan(&ref.Source, &ref.SourceID); err != nil {
			return nil, err
		}
		id.SourceIDs = append(id.SourceIDs, ref)
	}
	return &id, rows.Err()
}

// Tombstone returns the tombstone for a canonical ID, or nil when the ID has
// not been merged away.
func (s *Store) Tombstone(ctx context.Context, canonicalID string) (*Tombstone, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT canonical_id, entity_type, survivor_id, reason, created_at FROM identity_tombstones WHERE canonical_id = ?`,
		canonicalID,
	)
	var (
		ts         Tombstone
		reason     sql.NullString
		createdRaw string
	)
	if err := row.Scan(&ts.CanonicalID, &ts.EntityType, &ts.SurvivorID, &reason, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tombstone: %w", err)
	}
	ts.Reason = reason.String
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		ts.CreatedAt = created
	}
	return &ts, nil
}

// AbsorbInto folds every loser identity into the survivor in one transaction:
// all source links move to the survivor, losers become tombstones, and their
// identity rows disappear. Either every link moves or none does.
func (s *Store) AbsorbInto(ctx context.Context, survivor string, losers []string, reason string) error {
	if survivor == "" {
		return errors.New("survivor canonical id is required")
	}
	if len(losers) == 0 {
		return errors.New("at least one merged canonical id is required")
	}
	for _, loser := range losers {
		if loser == survivor {
			return fmt.Errorf("survivor %s listed among merged ids", survivor)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var entityType string
	if err := tx.QueryRowContext(
		ctx,
		`SELECT entity_type FROM canonical_identities WHERE canonical_id = ?`,
		survivor,
	).Scan(&entityType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("survivor identity %s not found", survivor)
		}
		return fmt.Errorf("load survivor: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, loser := range losers {
		var loserType string
		if err := tx.QueryRowContext(
			ctx,
			`SELECT entity_type FROM canonical_identities WHERE canonical_id = ?`,
			loser,
		).Scan(&loserType); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("merged identity %s not found", loser)
			}
			return fmt.Errorf("load merged identity: %w", err)
		}
		if loserType != entityType {
			return fmt.Errorf("cannot merge %s (%s) into %s (%s): entity types differ",
				loser, loserType, survivor, entityType)
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE source_links SET canonical_id = ?, linked_at = ? WHERE canonical_id = ?`,
			survivor, now, loser,
		); err != nil {
			return fmt.Errorf("relink %s: %w", loser, err)
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO identity_tombstones (canonical_id, entity_type, survivor_id, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
			loser, entityType, survivor, reason, now,
		); err != nil {
			return fmt.Errorf("tombstone %s: %w", loser, err)
		}
		if _, err := tx.ExecContext(
			ctx,
			`DELETE FROM canonical_identities WHERE canonical_id = ?`,
			loser,
		); err != nil {
			return fmt.Errorf("retire %s: %w", loser, err)
		}
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE canonical_identities SET updated_at = ? WHERE canonical_id = ?`,
		now, survivor,
	); err != nil {
		return fmt.Errorf("touch survivor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}
