package mapping_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"libretto/internal/mapping"
)

func TestApplyDirectAndOmission(t *testing.T) {
	var tr mapping.Transformer
	fields := []mapping.FieldMapping{
		{SourceField: "title", TargetField: "title", Transform: mapping.TransformDirect},
		{SourceField: "upc", TargetField: "upc", Transform: mapping.TransformDirect},
	}

	out, err := tr.Apply(map[string]any{"title": "Neon Nights"}, fields)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out["title"] != "Neon Nights" {
		t.Fatalf("direct transform altered value: %#v", out)
	}
	if _, ok := out["upc"]; ok {
		t.Fatal("absent source field must be omitted, not defaulted")
	}
}

func TestApplySplit(t *testing.T) {
	var tr mapping.Transformer
	fields := []mapping.FieldMapping{
		{SourceField: "artists", TargetField: "artists", Transform: mapping.TransformSplit, Config: map[string]string{"delimiter": ";"}},
		{SourceField: "tags", TargetField: "tags", Transform: mapping.TransformSplit},
	}

	out, err := tr.Apply(map[string]any{
		"artists": "ACME Band; Someone Else",
		"tags":    42,
	}, fields)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	want := []string{"ACME Band", "Someone Else"}
	if !reflect.DeepEqual(out["artists"], want) {
		t.Fatalf("split result = %#v, want %#v", out["artists"], want)
	}
	// Non-string input passes through unchanged.
	if out["tags"] != 42 {
		t.Fatalf("non-string split input altered: %#v", out["tags"])
	}
}

func TestApplyJoin(t *testing.T) {
	var tr mapping.Transformer
	fields := []mapping.FieldMapping{
		{SourceField: "categories", TargetField: "categories", Transform: mapping.TransformJoin, Config: map[string]string{"delimiter": ", "}},
		{SourceField: "mixed", TargetField: "mixed", Transform: mapping.TransformJoin},
		{SourceField: "scalar", TargetField: "scalar", Transform: mapping.TransformJoin},
	}

	out, err := tr.Apply(map[string]any{
		"categories": []string{"news", "tech"},
		"mixed":      []any{"a", 1},
		"scalar":     "plain",
	}, fields)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out["categories"] != "news, tech" {
		t.Fatalf("join result = %#v", out["categories"])
	}
	if out["mixed"] != "a,1" {
		t.Fatalf("mixed join result = %#v", out["mixed"])
	}
	// Non-sequence input passes through unchanged.
	if out["scalar"] != "plain" {
		t.Fatalf("scalar join input altered: %#v", out["scalar"])
	}
}

type upperLookup struct{}

func (upperLookup) Resolve(table string, value any) (any, error) {
	if table != "genres" {
		return nil, errors.New("unknown table")
	}
	if s, ok := value.(string); ok {
		return strings.ToUpper(s), nil
	}
	return value, nil
}

type failingCustom struct{}

func (failingCustom) Transform(name string, value any) (any, error) {
	return nil, errors.New("custom transform exploded")
}

func TestLookupAndCustomAreInjectable(t *testing.T) {
	fields := []mapping.FieldMapping{
		{SourceField: "genre", TargetField: "genre", Transform: mapping.TransformLookup, Config: map[string]string{"table": "genres"}},
	}

	// Without a resolver, lookup is identity.
	var plain mapping.Transformer
	out, err := plain.Apply(map[string]any{"genre": "synthwave"}, fields)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out["genre"] != "synthwave" {
		t.Fatalf("identity lookup altered value: %#v", out["genre"])
	}

	// With a resolver, the injected implementation runs.
	resolved := mapping.Transformer{Lookup: upperLookup{}}
	out, err = resolved.Apply(map[string]any{"genre": "synthwave"}, fields)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out["genre"] != "SYNTHWAVE" {
		t.Fatalf("lookup resolver not applied: %#v", out["genre"])
	}
}

func TestTransformErrorFailsWholeRecord(t *testing.T) {
	tr := mapping.Transformer{Custom: failingCustom{}}
	fields := []mapping.FieldMapping{
		{SourceField: "title", TargetField: "title", Transform: mapping.TransformDirect},
		{SourceField: "weird", TargetField: "weird", Transform: mapping.TransformCustom, Config: map[string]string{"name": "boom"}},
	}

	_, err := tr.Apply(map[string]any{"title": "ok", "weird": "x"}, fields)
	if err == nil {
		t.Fatal("expected transform error to surface")
	}
	if !strings.Contains(err.Error(), "weird") {
		t.Fatalf("error should name the field: %v", err)
	}
}

func TestUnknownTransformKind(t *testing.T) {
	var tr mapping.Transformer
	fields := []mapping.FieldMapping{
		{SourceField: "x", TargetField: "x", Transform: mapping.TransformKind("reverse")},
	}
	if _, err := tr.Apply(map[string]any{"x": 1}, fields); err == nil {
		t.Fatal("expected error for unknown transform kind")
	}
}
