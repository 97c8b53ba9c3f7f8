// Package pipeline drives staged records through normalization.
//
// A pool of workers pulls pending records from the staging store, each claim
// being a single conditional UPDATE so no two workers ever normalize the same
// record. A claimed record flows through mapping lookup, field transforms,
// canonical resolution and linking, best-effort duplicate detection, quality
// scoring, and finally the catalog upsert plus audit rows. Failures terminate
// only that record; workers heartbeat while processing and a reclaimer returns
// records whose worker died to the pending queue.
package pipeline
