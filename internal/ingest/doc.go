// Package ingest assembles and runs a complete sync: it takes the run lock,
// opens the state store, builds the catalog matcher and the configured parser
// and sink, then drives the hashlist pages through the pipeline.
//
// Retag reuses the same lock and matcher to re-match torrents already stored
// after the catalog changes.
package ingest
