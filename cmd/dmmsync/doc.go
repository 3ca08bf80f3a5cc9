// Command dmmsync ingests downloaded hashlist pages into a local torrent
// index, matching release names against an IMDb catalog snapshot.
//
// Typical usage:
//
//	dmmsync config init
//	dmmsync catalog import title.basics.tsv.gz
//	dmmsync sync
package main
