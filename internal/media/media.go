// Package media holds the torrent records that flow through an ingestion run.
package media

import (
	"strings"
	"time"
)

// Category classifies a record or catalog title.
type Category string

const (
	CategoryMovie   Category = "movie"
	CategorySeries  Category = "series"
	CategoryUnknown Category = "unknown"
)

// ParseCategory maps parser and catalog category spellings onto Category.
func ParseCategory(value string) Category {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "movie", "movies", "tvmovie", "film":
		return CategoryMovie
	case "series", "tv", "tvseries", "tvminiseries", "tvshort", "tvspecial", "episode", "show":
		return CategorySeries
	default:
		return CategoryUnknown
	}
}

// Matchable reports whether titles of this category can be resolved against
// the catalog.
func (c Category) Matchable() bool {
	return c == CategoryMovie || c == CategorySeries
}

// Entry is one torrent as published on a hashlist page.
type Entry struct {
	InfoHash string
	Name     string
	Size     int64
}

// Valid reports whether the entry satisfies the extraction invariants.
func (e Entry) Valid() bool {
	return e.InfoHash != "" && strings.TrimSpace(e.Name) != "" && e.Size > 0
}

// Item travels on the ingestion queue. Err carries a production failure for a
// single item; the collector logs it without abandoning the batch.
type Item struct {
	Entry Entry
	Err   error
}

// Record is the parsed, optionally catalog-matched, form of an Entry.
type Record struct {
	InfoHash        string
	RawTitle        string
	Title           string
	NormalizedTitle string
	Year            int
	Category        Category
	Resolution      string
	Codec           string
	Source          string
	Group           string
	Container       string
	Edition         string
	Seasons         []int
	Episodes        []int
	Languages       []string
	HDR             []string
	Audio           []string
	Size            int64
	Adult           bool
	ImdbID          string
	IngestedAt      time.Time
}

// Matched reports whether a catalog identifier has been attached.
func (r *Record) Matched() bool {
	return r != nil && r.ImdbID != ""
}
