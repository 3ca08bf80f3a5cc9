// Package catalog resolves parsed torrent titles to reference catalog entries.
//
// NewIndex builds a read-only fuzzy index over catalog titles once per run.
// Matcher resolves records against it, memoizing identical lookups in a
// per-run Cache, and MatchBatch fans independent (year, category) groups out
// across a bounded worker pool. ReadBasicsTSV streams IMDb title.basics dumps
// into Entry values for the sqlite catalog snapshot.
//
// Matching is best-effort ranking. A returned identifier is the most likely
// title, never an authoritative one.
package catalog
