package mapping

// Built-in mappings for the first onboarded sources. These double as the
// template for onboarding new sources without code changes: field list, key
// fields, dedup keys, and quality weights are all plain configuration.

const (
	upcPattern  = `^[0-9]{6,14}$`
	mbidPattern = `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`
	urlPattern  = `^https?://`
)

// DefaultMappings returns the three built-in entity mappings:
// DDEX deliveries to releases, MusicBrainz polls to artists, and RSS crawls
// to podcasts.
func DefaultMappings() []EntityMapping {
	return []EntityMapping{
		{
			Source:     "ddex",
			EntityType: "release",
			Fields: []FieldMapping{
				{SourceField: "title", TargetField: "title", Transform: TransformDirect},
				{SourceField: "upc", TargetField: "upc", Transform: TransformDirect},
				{SourceField: "label", TargetField: "label", Transform: TransformDirect},
				{SourceField: "release_date", TargetField: "release_date", Transform: TransformDirect},
				{SourceField: "artist_names", TargetField: "artists", Transform: TransformSplit, Config: map[string]string{"delimiter": ";"}},
				{SourceField: "genre", TargetField: "genre", Transform: TransformLookup, Config: map[string]string{"table": "genres"}},
			},
			KeyFields:           []string{"title", "upc"},
			DeduplicationFields: []string{"upc", "title"},
			QualityRules: []QualityRule{
				{Field: "title", Rule: RuleRequired, Weight: 3},
				{Field: "upc", Rule: RuleFormat, Weight: 2, Pattern: upcPattern},
				{Field: "label", Rule: RuleLength, Weight: 1},
			},
		},
		{
			Source:     "musicbrainz",
			EntityType: "artist",
			Fields: []FieldMapping{
				{SourceField: "name", TargetField: "name", Transform: TransformDirect},
				{SourceField: "mbid", TargetField: "mbid", Transform: TransformDirect},
				{SourceField: "sort_name", TargetField: "sort_name", Transform: TransformDirect},
				{SourceField: "aliases", TargetField: "aliases", Transform: TransformSplit},
				{SourceField: "country", TargetField: "country", Transform: TransformDirect},
			},
			KeyFields:           []string{"name", "mbid"},
			DeduplicationFields: []string{"mbid", "name"},
			QualityRules: []QualityRule{
				{Field: "name", Rule: RuleRequired, Weight: 3},
				{Field: "mbid", Rule: RuleFormat, Weight: 2, Pattern: mbidPattern},
				{Field: "country", Rule: RuleLength, Weight: 1},
			},
		},
		{
			Source:     "rss",
			EntityType: "podcast",
			Fields: []FieldMapping{
				{SourceField: "title", TargetField: "title", Transform: TransformDirect},
				{SourceField: "rss_url", TargetField: "rss_url", Transform: TransformDirect},
				{SourceField: "description", TargetField: "description", Transform: TransformDirect},
				{SourceField: "author", TargetField: "author", Transform: TransformDirect},
				{SourceField: "categories", TargetField: "categories", Transform: TransformJoin, Config: map[string]string{"delimiter": ", "}},
			},
			KeyFields:           []string{"title", "rss_url"},
			DeduplicationFields: []string{"title", "rss_url"},
			QualityRules: []QualityRule{
				{Field: "title", Rule: RuleRequired, Weight: 3},
				{Field: "rss_url", Rule: RuleFormat, Weight: 2, Pattern: urlPattern},
				{Field: "description", Rule: RuleLength, Weight: 1},
			},
		},
	}
}
