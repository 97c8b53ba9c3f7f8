package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"libretto/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// ErrUnknownEntityType reports an entity type with no backing catalog table.
var ErrUnknownEntityType = errors.New("unknown entity type")

// Store is the pipeline's contract with the catalog: upsert-by-canonical-ID
// with version increment, soft removal, and the audit side tables. The
// orchestrator and merger depend on this interface so tests can substitute
// counting fakes.
type Store interface {
	Upsert(ctx context.Context, entity Entity) (*Entity, error)
	Get(ctx context.Context, entityType, canonicalID string) (*Entity, error)
	Deactivate(ctx context.Context, entityType, canonicalID, source, reason string) error
	MirrorSourceLink(ctx context.Context, source, sourceID, entityType, canonicalID string) error
	RecordIngest(ctx context.Context, entry IngestEntry) error
}

// entityTables names every table the pipeline may upsert into. Entity types
// outside this set are rejected before any SQL is built.
var entityTables = map[string]struct{}{
	"artist":    {},
	"release":   {},
	"track":     {},
	"video":     {},
	"podcast":   {},
	"episode":   {},
	"book":      {},
	"audiobook": {},
}

// EntityTypes returns the entity types the catalog has tables for, in no
// particular order.
func EntityTypes() []string {
	types := make([]string, 0, len(entityTables))
	for name := range entityTables {
		types = append(types, name)
	}
	return types
}

func tableFor(entityType string) (string, error) {
	if _, ok := entityTables[entityType]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownEntityType, entityType)
	}
	// Quoted because "release" is a reserved word in SQLite.
	return `"` + entityType + `"`, nil
}

// SQLStore is the SQLite-backed catalog implementation.
type SQLStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLStore)(nil)

// Open initializes or connects to the catalog database.
func Open(cfg *config.Config) (*SQLStore, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	// Pragmas ride the DSN so every pooled connection gets them;
	// _txlock=immediate serializes Upsert/Deactivate transactions at BEGIN
	// instead of failing with SQLITE_BUSY on the read->write upgrade.
	dbPath := filepath.Join(cfg.Paths.DataDir, "catalog.db")
	dsn := "file:" + dbPath + "?_txlock=immediate" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &SQLStore{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLStore) initSchema(ctx context.Context) error {
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
