// Package hashlist turns downloaded hashlist pages into torrent entries.
//
// A page embeds its list as an lz-string compressed iframe fragment. The
// Extractor locates and decodes it, the Producer walks a directory of pages,
// consults the page ledger so a page is only ever processed once, and feeds
// the entries to the ingestion pipeline. Filter drops blacklisted hashes from
// a collected batch.
package hashlist
