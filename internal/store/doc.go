// Package store provides the SQLite persistence layer for dmmsync.
//
// A single database holds four concerns: the page ledger consulted by the
// hashlist producer, the info-hash blacklist, the IMDb catalog snapshot the
// matcher indexes at the start of each run, and the torrents table that the
// default sink upserts into keyed by info hash. Writes retry while SQLite
// reports the database busy, and the schema is versioned so an incompatible
// file is rejected with ErrSchemaMismatch instead of being migrated in place.
package store
