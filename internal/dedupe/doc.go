// Package dedupe finds and reconciles duplicate canonical identities.
//
// Candidate detection is a pluggable strategy: the shipped NoopMatcher never
// reports duplicates, which is the safe default when no similarity algorithm
// has been chosen for a deployment. Merging is real: Merger folds losing
// identities into a survivor, reconciles catalog fields by quality-weighted
// precedence, and leaves tombstones behind.
package dedupe
