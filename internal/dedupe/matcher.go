package dedupe

import "context"

// Matcher proposes canonical IDs that plausibly describe the same real-world
// entity as the normalized record, based on the mapping's deduplication
// fields. Matches are advisory: the pipeline records candidates but never
// merges without an explicit operator request.
type Matcher interface {
	FindDuplicates(ctx context.Context, entityType string, normalized map[string]any, dedupFields []string) ([]string, error)
}

// NoopMatcher reports no duplicates. It is the conservative default; a
// production deployment swaps in a real similarity matcher.
type NoopMatcher struct{}

// FindDuplicates always returns an empty candidate set.
func (NoopMatcher) FindDuplicates(context.Context, string, map[string]any, []string) ([]string, error) {
	return nil, nil
}
