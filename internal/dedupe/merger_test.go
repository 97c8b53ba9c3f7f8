package dedupe_test

import (
	"context"
	"testing"

	"libretto/internal/catalog"
	"libretto/internal/dedupe"
	"libretto/internal/testsupport"
)

func TestNoopMatcherFindsNothing(t *testing.T) {
	candidates, err := dedupe.NoopMatcher{}.FindDuplicates(context.Background(), "release",
		map[string]any{"title": "Neon Nights"}, []string{"upc", "title"})
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("noop matcher must report no candidates, got %v", candidates)
	}
}

func TestMergeUnionsLinksAndReconcilesFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	identities := testsupport.MustOpenIdentity(t, cfg)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	const survivor = "release:aaaaaaaaaaaaaaaa"
	const loser = "release:bbbbbbbbbbbbbbbb"

	if err := identities.Link(ctx, survivor, "release", "ddex", "rel-1"); err != nil {
		t.Fatalf("link survivor: %v", err)
	}
	if err := identities.Link(ctx, loser, "release", "musicbrainz", "mb-rel-1"); err != nil {
		t.Fatalf("link loser: %v", err)
	}

	if _, err := store.Upsert(ctx, catalog.Entity{
		EntityType:   "release",
		CanonicalID:  survivor,
		QualityScore: 0.6,
		ExternalIDs:  map[string]string{"ddex": "rel-1"},
		Metadata:     map[string]any{"title": "Neon Nights", "label": "ACME"},
	}); err != nil {
		t.Fatalf("upsert survivor: %v", err)
	}
	if _, err := store.Upsert(ctx, catalog.Entity{
		EntityType:   "release",
		CanonicalID:  loser,
		QualityScore: 0.9,
		ExternalIDs:  map[string]string{"musicbrainz": "mb-rel-1"},
		Metadata:     map[string]any{"title": "Neon Nights (Deluxe)", "year": "2024"},
	}); err != nil {
		t.Fatalf("upsert loser: %v", err)
	}

	merger := dedupe.NewMerger(identities, store, nil)
	got, err := merger.Merge(ctx, []string{survivor, loser}, "duplicate release")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if got != survivor {
		t.Fatalf("survivor = %s, want %s", got, survivor)
	}

	// All source pairs now belong to the survivor.
	id, err := identities.Get(ctx, survivor)
	if err != nil {
		t.Fatalf("Get survivor identity: %v", err)
	}
	if len(id.SourceIDs) != 2 {
		t.Fatalf("survivor must own both source pairs, got %d", len(id.SourceIDs))
	}
	if ts, err := identities.Tombstone(ctx, loser); err != nil || ts == nil || ts.SurvivorID != survivor {
		t.Fatalf("loser identity tombstone = %+v err=%v", ts, err)
	}

	// The loser had the higher quality score, so its fields win on conflict.
	entity, err := store.Get(ctx, "release", survivor)
	if err != nil {
		t.Fatalf("Get survivor entity: %v", err)
	}
	if entity.Metadata["title"] != "Neon Nights (Deluxe)" {
		t.Fatalf("higher-quality value must win, got title=%v", entity.Metadata["title"])
	}
	if entity.Metadata["year"] != "2024" {
		t.Fatal("fields the survivor lacked must be filled from the loser")
	}
	if entity.ExternalIDs["ddex"] != "rel-1" || entity.ExternalIDs["musicbrainz"] != "mb-rel-1" {
		t.Fatalf("external ids must union, got %v", entity.ExternalIDs)
	}
	if entity.QualityScore != 0.9 {
		t.Fatalf("merged quality score = %v, want 0.9", entity.QualityScore)
	}

	// The loser row survives deactivated, with a tombstone.
	loserEntity, err := store.Get(ctx, "release", loser)
	if err != nil {
		t.Fatalf("Get loser entity: %v", err)
	}
	if loserEntity.IsActive {
		t.Fatal("loser entity must be deactivated")
	}
	if ts, err := store.Tombstone(ctx, "release", loser); err != nil || ts == nil {
		t.Fatalf("loser catalog tombstone = %+v err=%v", ts, err)
	}
}

func TestMergeTiesKeepSurvivorValues(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	identities := testsupport.MustOpenIdentity(t, cfg)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	const survivor = "artist:1111111111111111"
	const loser = "artist:2222222222222222"
	if err := identities.Link(ctx, survivor, "artist", "musicbrainz", "a"); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := identities.Link(ctx, loser, "artist", "ddex", "b"); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := store.Upsert(ctx, catalog.Entity{
		EntityType: "artist", CanonicalID: survivor, QualityScore: 0.7,
		Metadata: map[string]any{"name": "The Midnight"},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.Upsert(ctx, catalog.Entity{
		EntityType: "artist", CanonicalID: loser, QualityScore: 0.7,
		Metadata: map[string]any{"name": "the midnight"},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	merger := dedupe.NewMerger(identities, store, nil)
	if _, err := merger.Merge(ctx, []string{survivor, loser}, ""); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	entity, err := store.Get(ctx, "artist", survivor)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if entity.Metadata["name"] != "The Midnight" {
		t.Fatalf("equal scores must keep the survivor's value, got %v", entity.Metadata["name"])
	}
}

func TestMergePublishesOneSurvivorEvent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	identities := testsupport.MustOpenIdentity(t, cfg)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	const survivor = "podcast:1111111111111111"
	const loser = "podcast:2222222222222222"
	if err := identities.Link(ctx, survivor, "podcast", "rss", "feed-1"); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := identities.Link(ctx, loser, "podcast", "rss", "feed-2"); err != nil {
		t.Fatalf("link: %v", err)
	}
	if _, err := store.Upsert(ctx, catalog.Entity{
		EntityType: "podcast", CanonicalID: survivor,
		Metadata: map[string]any{"title": "Night Signals"},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	before, err := store.EventsFor(ctx, "podcast", survivor)
	if err != nil {
		t.Fatalf("EventsFor: %v", err)
	}

	merger := dedupe.NewMerger(identities, store, nil)
	if _, err := merger.Merge(ctx, []string{survivor, loser}, "operator merge"); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	after, err := store.EventsFor(ctx, "podcast", survivor)
	if err != nil {
		t.Fatalf("EventsFor: %v", err)
	}
	if len(after) != len(before)+1 {
		t.Fatalf("merge must publish exactly one survivor event, got %d new", len(after)-len(before))
	}
}

func TestMergeRequiresTwoIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	identities := testsupport.MustOpenIdentity(t, cfg)
	store := testsupport.MustOpenCatalog(t, cfg)

	merger := dedupe.NewMerger(identities, store, nil)
	if _, err := merger.Merge(context.Background(), []string{"artist:1111111111111111"}, ""); err == nil {
		t.Fatal("merge with a single id must fail")
	}
}
