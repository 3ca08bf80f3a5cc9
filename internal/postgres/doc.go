// Package postgres provides an optional PostgreSQL sink for matched torrents.
//
// The sqlite state database always keeps the page ledger, blacklist and
// catalog snapshot. When storage.sink is "postgres", torrents are upserted
// into a shared PostgreSQL table instead so several consumers can query
// them. Writes are queued as a pgx.Batch per chunk and keyed by info hash.
package postgres
