package quality_test

import (
	"testing"

	"libretto/internal/mapping"
	"libretto/internal/quality"
)

func TestEmptyRulesYieldNeutralScore(t *testing.T) {
	score, err := quality.Score(map[string]any{"title": "x"}, nil)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score != 0.5 {
		t.Fatalf("expected neutral 0.5, got %f", score)
	}
}

func TestScoreStaysWithinBounds(t *testing.T) {
	rules := []mapping.QualityRule{
		{Field: "title", Rule: mapping.RuleRequired, Weight: 3},
		{Field: "upc", Rule: mapping.RuleFormat, Weight: 2, Pattern: `^[0-9]{6,14}$`},
		{Field: "label", Rule: mapping.RuleLength, Weight: 1},
	}

	inputs := []map[string]any{
		{},
		{"title": "Neon Nights"},
		{"title": "Neon Nights", "upc": "012345", "label": "ACME"},
		{"title": "", "upc": "not-a-upc", "label": 7},
	}
	for _, normalized := range inputs {
		score, err := quality.Score(normalized, rules)
		if err != nil {
			t.Fatalf("Score failed for %#v: %v", normalized, err)
		}
		if score < 0 || score > 1 {
			t.Fatalf("score %f out of bounds for %#v", score, normalized)
		}
	}
}

func TestWeightedAverage(t *testing.T) {
	rules := []mapping.QualityRule{
		{Field: "title", Rule: mapping.RuleRequired, Weight: 3},
		{Field: "rss_url", Rule: mapping.RuleFormat, Weight: 2, Pattern: `^https?://`},
		{Field: "description", Rule: mapping.RuleLength, Weight: 1},
	}

	full, err := quality.Score(map[string]any{
		"title":       "Night Signals",
		"rss_url":     "https://example.com/feed.xml",
		"description": "weekly show",
	}, rules)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if full != 1 {
		t.Fatalf("expected full score 1.0, got %f", full)
	}

	missingURL, err := quality.Score(map[string]any{
		"title":       "Night Signals",
		"description": "weekly show",
	}, rules)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	want := 4.0 / 6.0
	if missingURL != want {
		t.Fatalf("expected %f, got %f", want, missingURL)
	}
	if missingURL >= full {
		t.Fatal("record without rss_url must score lower")
	}
}

func TestRequiredRuleOnNonStringValues(t *testing.T) {
	rules := []mapping.QualityRule{
		{Field: "artists", Rule: mapping.RuleRequired, Weight: 1},
	}
	score, err := quality.Score(map[string]any{"artists": []string{"ACME Band"}}, rules)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score != 1 {
		t.Fatalf("expected populated slice to satisfy required, got %f", score)
	}

	score, err = quality.Score(map[string]any{"artists": []string{}}, rules)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score != 0 {
		t.Fatalf("expected empty slice to fail required, got %f", score)
	}
}

func TestFormatRuleRequiresPattern(t *testing.T) {
	rules := []mapping.QualityRule{
		{Field: "upc", Rule: mapping.RuleFormat, Weight: 1},
	}
	if _, err := quality.Score(map[string]any{"upc": "012345"}, rules); err == nil {
		t.Fatal("expected error for format rule without pattern")
	}
}

func TestZeroWeightRulesIgnored(t *testing.T) {
	rules := []mapping.QualityRule{
		{Field: "title", Rule: mapping.RuleRequired, Weight: 0},
	}
	score, err := quality.Score(map[string]any{}, rules)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score != 0.5 {
		t.Fatalf("expected neutral score when all weights are zero, got %f", score)
	}
}
