package dedupe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"libretto/internal/catalog"
	"libretto/internal/identity"
	"libretto/internal/logging"
)

// Merger folds duplicate canonical identities into one survivor.
//
// The identity side is a single transaction (see identity.Store.AbsorbInto);
// the catalog side then reconciles fields by quality-weighted precedence and
// soft-removes the losers. The first ID in the merge list is always the
// survivor.
type Merger struct {
	identities *identity.Store
	catalog    catalog.Store
	logger     *slog.Logger
}

// NewMerger wires a merger over the identity and catalog stores.
func NewMerger(identities *identity.Store, catalogStore catalog.Store, logger *slog.Logger) *Merger {
	return &Merger{
		identities: identities,
		catalog:    catalogStore,
		logger:     logging.NewComponentLogger(logger, "merger"),
	}
}

// Merge absorbs every canonical ID after the first into the first. Source
// links move to the survivor, loser catalog rows are deactivated with
// tombstones, and the survivor is upserted once with the reconciled fields,
// which publishes exactly one update event for it.
//
// Field reconciliation: a loser's value replaces the survivor's only when the
// loser's quality score is strictly higher; ties keep the survivor's value.
// Fields the survivor lacks are filled from any loser that has them.
func (m *Merger) Merge(ctx context.Context, canonicalIDs []string, reason string) (string, error) {
	if len(canonicalIDs) < 2 {
		return "", errors.New("merge requires at least two canonical ids")
	}
	survivor := canonicalIDs[0]
	losers := canonicalIDs[1:]

	survivorIdentity, err := m.identities.Get(ctx, survivor)
	if err != nil {
		return "", fmt.Errorf("load survivor identity: %w", err)
	}
	if survivorIdentity == nil {
		return "", fmt.Errorf("survivor identity %s not found", survivor)
	}
	entityType := survivorIdentity.EntityType

	merged, loserEntities, err := m.reconcile(ctx, entityType, survivor, losers)
	if err != nil {
		return "", err
	}

	if err := m.identities.AbsorbInto(ctx, survivor, losers, reason); err != nil {
		return "", fmt.Errorf("absorb identities: %w", err)
	}

	if _, err := m.catalog.Upsert(ctx, *merged); err != nil {
		return "", fmt.Errorf("upsert survivor: %w", err)
	}
	for _, loser := range loserEntities {
		if err := m.catalog.Deactivate(ctx, entityType, loser.CanonicalID, "", "merged into "+survivor); err != nil {
			return "", fmt.Errorf("deactivate %s: %w", loser.CanonicalID, err)
		}
	}

	// Remap the query-side mirror for every pair the survivor now owns.
	refreshed, err := m.identities.Get(ctx, survivor)
	if err != nil {
		return "", fmt.Errorf("reload survivor identity: %w", err)
	}
	for _, ref := range refreshed.SourceIDs {
		if err := m.catalog.MirrorSourceLink(ctx, ref.Source, ref.SourceID, entityType, survivor); err != nil {
			return "", fmt.Errorf("mirror %s/%s: %w", ref.Source, ref.SourceID, err)
		}
	}

	m.logger.Info("merged canonical identities",
		logging.String(logging.FieldEntityType, entityType),
		logging.String(logging.FieldCanonicalID, survivor),
		logging.Int("merged", len(losers)),
	)
	return survivor, nil
}

// reconcile builds the survivor's post-merge catalog entity and returns the
// loser entities that exist in the catalog.
func (m *Merger) reconcile(ctx context.Context, entityType, survivor string, losers []string) (*catalog.Entity, []*catalog.Entity, error) {
	base, err := m.catalog.Get(ctx, entityType, survivor)
	if err != nil {
		return nil, nil, fmt.Errorf("load survivor entity: %w", err)
	}
	if base == nil {
		base = &catalog.Entity{
			EntityType:  entityType,
			CanonicalID: survivor,
		}
	}
	survivorScore := base.QualityScore

	merged := catalog.Entity{
		EntityType:   entityType,
		CanonicalID:  survivor,
		QualityScore: survivorScore,
		ExternalIDs:  map[string]string{},
		Metadata:     map[string]any{},
	}
	for source, sourceID := range base.ExternalIDs {
		merged.ExternalIDs[source] = sourceID
	}
	for field, value := range base.Metadata {
		merged.Metadata[field] = value
	}

	var loserEntities []*catalog.Entity
	for _, loser := range losers {
		entity, err := m.catalog.Get(ctx, entityType, loser)
		if err != nil {
			return nil, nil, fmt.Errorf("load merged entity %s: %w", loser, err)
		}
		if entity == nil {
			continue
		}
		loserEntities = append(loserEntities, entity)

		wins := entity.QualityScore > survivorScore
		for field, value := range entity.Metadata {
			if _, ok := merged.Metadata[field]; !ok || wins {
				merged.Metadata[field] = value
			}
		}
		for source, sourceID := range entity.ExternalIDs {
			if _, ok := merged.ExternalIDs[source]; !ok || wins {
				merged.ExternalIDs[source] = sourceID
			}
		}
		if entity.QualityScore > merged.QualityScore {
			merged.QualityScore = entity.QualityScore
		}
	}
	return &merged, loserEntities, nil
}
