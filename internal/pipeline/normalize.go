package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"libretto/internal/catalog"
	"libretto/internal/identity"
	"libretto/internal/logging"
	"libretto/internal/mapping"
	"libretto/internal/quality"
	"libretto/internal/staging"
)

// outcome captures what a successful normalization produced.
type outcome struct {
	CanonicalID  string
	QualityScore float64
	Duplicates   []string
}

// process runs one claimed record to a terminal state. The record is already
// in processing; every exit path below either finishes it or deliberately
// leaves it for the lease reclaimer (shutdown mid-record).
func (o *Orchestrator) process(ctx context.Context, logger *slog.Logger, record *staging.Record) {
	recCtx := logging.WithRecord(ctx, record.ID, record.Source, record.EntityType)
	recCtx = logging.WithCorrelationID(recCtx, uuid.New().String())
	logger = logging.WithContext(recCtx, logger)

	var hbWG sync.WaitGroup
	hbCtx, hbCancel := context.WithCancel(ctx)
	if o.heartbeatInterval > 0 {
		hbWG.Add(1)
		go o.heartbeatLoop(hbCtx, &hbWG, logger, record.ID)
	}

	result, err := o.normalize(recCtx, logger, record)
	hbCancel()
	hbWG.Wait()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Shutdown mid-record: leave it in processing so the stale-lease
			// reclaimer returns it to pending.
			return
		}
		logger.Error("normalization failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "record_failed"),
		)
		if markErr := o.deps.Staging.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			logger.Error("failed to persist failure status", logging.Error(markErr))
			return
		}
		o.recordIngest(ctx, logger, record, "", string(staging.StatusFailed), err.Error())
		return
	}

	if markErr := o.deps.Staging.MarkNormalized(ctx, record.ID); markErr != nil {
		logger.Error("failed to persist normalized status", logging.Error(markErr))
		return
	}
	o.recordIngest(ctx, logger, record, result.CanonicalID, string(staging.StatusNormalized), "")

	logger.Info("record normalized",
		logging.String(logging.FieldCanonicalID, result.CanonicalID),
		logging.Float64("quality_score", result.QualityScore),
		logging.Int("duplicate_candidates", len(result.Duplicates)),
		logging.String(logging.FieldEventType, "record_normalized"),
	)
}

// normalize is the per-record pipeline: mapping lookup, transform, canonical
// resolution, duplicate scan, quality score, catalog write.
func (o *Orchestrator) normalize(ctx context.Context, logger *slog.Logger, record *staging.Record) (*outcome, error) {
	m, ok := o.deps.Registry.Lookup(record.Source, record.EntityType)
	if !ok {
		return nil, Wrap(ErrConfiguration, "lookup mapping",
			fmt.Sprintf("no mapping for %s:%s", record.Source, record.EntityType), nil)
	}

	normalized, err := o.deps.Transformer.Apply(record.RawData, m.Fields)
	if err != nil {
		return nil, Wrap(ErrTransform, "apply field mappings", "", err)
	}

	canonicalID, err := o.resolveCanonical(ctx, m, record, normalized)
	if err != nil {
		return nil, err
	}

	// Duplicate detection is advisory; a matcher failure never fails the
	// record.
	duplicates, err := o.deps.Matcher.FindDuplicates(ctx, record.EntityType, normalized, m.DeduplicationFields)
	if err != nil {
		logger.Warn("duplicate detection failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "dedupe_scan_failed"),
		)
		duplicates = nil
	}
	filtered := duplicates[:0]
	for _, candidate := range duplicates {
		if candidate != canonicalID {
			filtered = append(filtered, candidate)
		}
	}
	duplicates = filtered
	if len(duplicates) > 0 {
		logger.Info("duplicate candidates found",
			logging.String(logging.FieldCanonicalID, canonicalID),
			logging.Any("candidates", duplicates),
			logging.String(logging.FieldEventType, "dedupe_candidates"),
		)
	}

	score, err := quality.Score(normalized, m.QualityRules)
	if err != nil {
		return nil, Wrap(ErrConfiguration, "evaluate quality rules", "", err)
	}

	if _, err := o.deps.Catalog.Upsert(ctx, catalog.Entity{
		EntityType:   record.EntityType,
		CanonicalID:  canonicalID,
		QualityScore: score,
		ExternalIDs:  map[string]string{record.Source: record.SourceID},
		Metadata:     normalized,
	}); err != nil {
		return nil, Wrap(ErrStore, "upsert catalog entity", "", err)
	}
	if err := o.deps.Catalog.MirrorSourceLink(ctx, record.Source, record.SourceID, record.EntityType, canonicalID); err != nil {
		return nil, Wrap(ErrStore, "mirror source mapping", "", err)
	}

	return &outcome{CanonicalID: canonicalID, QualityScore: score, Duplicates: duplicates}, nil
}

// resolveCanonical finds or derives the record's canonical ID and links the
// source pair to it. An existing link always wins over a freshly derived ID;
// re-keying an already-linked pair requires an explicit merge. Link conflicts
// are transient (a concurrent worker linked the pair first) and resolved by
// adopting the winner's ID, bounded by the configured retry budget.
func (o *Orchestrator) resolveCanonical(ctx context.Context, m mapping.EntityMapping, record *staging.Record, normalized map[string]any) (string, error) {
	canonicalID, err := o.deps.Identities.FindExisting(ctx, record.Source, record.SourceID, record.EntityType)
	if err != nil {
		return "", Wrap(ErrResolution, "find existing link", "", err)
	}
	if canonicalID == "" {
		canonicalID = identity.CanonicalID(record.EntityType, m.KeyFields, normalized)
	}

	attempts := o.linkRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := o.deps.Identities.Link(ctx, canonicalID, record.EntityType, record.Source, record.SourceID)
		if err == nil {
			return canonicalID, nil
		}
		if !errors.Is(err, identity.ErrLinkConflict) {
			return "", Wrap(ErrResolution, "link source pair", "", err)
		}
		lastErr = err
		winner, findErr := o.deps.Identities.FindExisting(ctx, record.Source, record.SourceID, record.EntityType)
		if findErr != nil {
			return "", Wrap(ErrResolution, "find existing link", "", findErr)
		}
		if winner != "" {
			canonicalID = winner
		}
	}
	return "", Wrap(ErrResolution, "link source pair", "retry budget exhausted", lastErr)
}

// recordIngest appends the audit row; a full audit trail should not block the
// pipeline, so failures only log.
func (o *Orchestrator) recordIngest(ctx context.Context, logger *slog.Logger, record *staging.Record, canonicalID, status, errMsg string) {
	err := o.deps.Catalog.RecordIngest(ctx, catalog.IngestEntry{
		StagingID:   record.ID,
		Source:      record.Source,
		SourceID:    record.SourceID,
		EntityType:  record.EntityType,
		CanonicalID: canonicalID,
		Status:      status,
		Error:       errMsg,
	})
	if err != nil {
		logger.Warn("failed to append ingest log", logging.Error(err))
	}
}
