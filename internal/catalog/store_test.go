package catalog_test

import (
	"context"
	"errors"
	"testing"

	"libretto/internal/catalog"
	"libretto/internal/testsupport"
)

func TestUpsertCreatesThenUpdates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	first, err := store.Upsert(ctx, catalog.Entity{
		EntityType:   "release",
		CanonicalID:  "release:aaaaaaaaaaaaaaaa",
		QualityScore: 0.8,
		ExternalIDs:  map[string]string{"ddex": "rel-1"},
		Metadata:     map[string]any{"title": "Neon Nights", "label": "ACME"},
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("first write must be version 1, got %d", first.Version)
	}
	if first.ETag == "" {
		t.Fatal("upsert must assign an etag")
	}
	if !first.IsActive {
		t.Fatal("upserted entity must be active")
	}

	second, err := store.Upsert(ctx, catalog.Entity{
		EntityType:   "release",
		CanonicalID:  "release:aaaaaaaaaaaaaaaa",
		QualityScore: 0.9,
		ExternalIDs:  map[string]string{"musicbrainz": "mb-rel-1"},
		Metadata:     map[string]any{"title": "Neon Nights", "label": "ACME Records"},
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("second write must bump version, got %d", second.Version)
	}
	if second.ETag == first.ETag {
		t.Fatal("every upsert must rotate the etag")
	}

	got, err := store.Get(ctx, "release", "release:aaaaaaaaaaaaaaaa")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ExternalIDs["ddex"] != "rel-1" || got.ExternalIDs["musicbrainz"] != "mb-rel-1" {
		t.Fatalf("external ids must accumulate across upserts, got %v", got.ExternalIDs)
	}
	if got.Metadata["label"] != "ACME Records" {
		t.Fatalf("metadata must be replaced by the latest upsert, got %v", got.Metadata["label"])
	}
	if got.QualityScore != 0.9 {
		t.Fatalf("quality score = %v, want 0.9", got.QualityScore)
	}
}

func TestUpsertAppendsUpdateEvents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	entity := catalog.Entity{
		EntityType:  "artist",
		CanonicalID: "artist:1111111111111111",
		Metadata:    map[string]any{"name": "The Midnight"},
	}
	if _, err := store.Upsert(ctx, entity); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.Upsert(ctx, entity); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	events, err := store.EventsFor(ctx, "artist", "artist:1111111111111111")
	if err != nil {
		t.Fatalf("EventsFor: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected one event per upsert, got %d", len(events))
	}
	if events[0].Op != catalog.OpCreate || events[0].Version != 1 {
		t.Fatalf("first event = %+v, want create v1", events[0])
	}
	if events[1].Op != catalog.OpUpdate || events[1].Version != 2 {
		t.Fatalf("second event = %+v, want update v2", events[1])
	}
}

func TestUpsertRejectsUnknownEntityType(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)

	_, err := store.Upsert(context.Background(), catalog.Entity{
		EntityType:  "playlist",
		CanonicalID: "playlist:1234567812345678",
	})
	if !errors.Is(err, catalog.ErrUnknownEntityType) {
		t.Fatalf("expected ErrUnknownEntityType, got %v", err)
	}
}

func TestDeactivateLeavesTombstoneAndEvent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	if _, err := store.Upsert(ctx, catalog.Entity{
		EntityType:  "podcast",
		CanonicalID: "podcast:2222222222222222",
		Metadata:    map[string]any{"title": "Night Signals"},
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.Deactivate(ctx, "podcast", "podcast:2222222222222222", "rss", "merged into survivor"); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	got, err := store.Get(ctx, "podcast", "podcast:2222222222222222")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.IsActive {
		t.Fatal("deactivated entity must be inactive")
	}
	if got.Version != 2 {
		t.Fatalf("deactivation must bump version, got %d", got.Version)
	}

	ts, err := store.Tombstone(ctx, "podcast", "podcast:2222222222222222")
	if err != nil {
		t.Fatalf("Tombstone: %v", err)
	}
	if ts == nil || ts.Reason != "merged into survivor" {
		t.Fatalf("tombstone = %+v", ts)
	}

	events, err := store.EventsFor(ctx, "podcast", "podcast:2222222222222222")
	if err != nil {
		t.Fatalf("EventsFor: %v", err)
	}
	if len(events) != 2 || events[1].Op != catalog.OpDeactivate {
		t.Fatalf("expected trailing deactivate event, got %+v", events)
	}
}

func TestDeactivateUnknownEntityFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)

	if err := store.Deactivate(context.Background(), "track", "track:ffffffffffffffff", "", "gone"); err == nil {
		t.Fatal("deactivating an unknown entity must fail")
	}
}

func TestMirrorSourceLinkUpserts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	if err := store.MirrorSourceLink(ctx, "ddex", "rel-1", "release", "release:aaaaaaaaaaaaaaaa"); err != nil {
		t.Fatalf("MirrorSourceLink: %v", err)
	}
	// Remapping the same pair (after a merge) must overwrite, not error.
	if err := store.MirrorSourceLink(ctx, "ddex", "rel-1", "release", "release:bbbbbbbbbbbbbbbb"); err != nil {
		t.Fatalf("MirrorSourceLink remap: %v", err)
	}
}

func TestRecordIngestHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	if err := store.RecordIngest(ctx, catalog.IngestEntry{
		StagingID:  "staging-1",
		Source:     "ddex",
		SourceID:   "rel-1",
		EntityType: "release",
		Status:     "failed",
		Error:      "no mapping for ddex:playlist",
	}); err != nil {
		t.Fatalf("RecordIngest: %v", err)
	}
	if err := store.RecordIngest(ctx, catalog.IngestEntry{
		StagingID:   "staging-1",
		Source:      "ddex",
		SourceID:    "rel-1",
		EntityType:  "release",
		CanonicalID: "release:aaaaaaaaaaaaaaaa",
		Status:      "normalized",
	}); err != nil {
		t.Fatalf("RecordIngest: %v", err)
	}

	entries, err := store.IngestHistory(ctx, "staging-1")
	if err != nil {
		t.Fatalf("IngestHistory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(entries))
	}
	if entries[0].Error == "" || entries[1].CanonicalID == "" {
		t.Fatalf("audit rows incomplete: %+v", entries)
	}
}
