package parsing

import (
	"context"
	"strings"
	"time"

	"github.com/moistari/rls"

	"dmmsync/internal/media"
	"dmmsync/internal/textutil"
)

// RLSParser parses release names in-process.
type RLSParser struct {
	now func() time.Time
}

// NewRLSParser returns an in-process parser.
func NewRLSParser() *RLSParser {
	return &RLSParser{now: time.Now}
}

// ParseBatch parses every entry. Entries whose name yields no title are
// omitted from the result.
func (p *RLSParser) ParseBatch(_ context.Context, entries []media.Entry) ([]*media.Record, error) {
	records := make([]*media.Record, 0, len(entries))
	ingestedAt := p.now().UTC()
	for _, entry := range entries {
		record, ok := p.Parse(entry)
		if !ok {
			continue
		}
		record.IngestedAt = ingestedAt
		records = append(records, record)
	}
	return records, nil
}

// Parse parses a single entry.
func (p *RLSParser) Parse(entry media.Entry) (*media.Record, bool) {
	release := rls.ParseString(entry.Name)
	title := strings.TrimSpace(release.Title)
	normalized := textutil.NormalizeTitle(title)
	if normalized == "" {
		return nil, false
	}

	record := &media.Record{
		InfoHash:        entry.InfoHash,
		RawTitle:        entry.Name,
		Title:           title,
		NormalizedTitle: normalized,
		Year:            release.Year,
		Category:        releaseCategory(release),
		Adult:           isAdult(release),
		Resolution:      release.Resolution,
		Codec:           strings.Join(release.Codec, " "),
		Source:          release.Source,
		Group:           release.Group,
		Container:       release.Container,
		Edition:         strings.Join(append(append([]string(nil), release.Edition...), release.Cut...), " "),
		Languages:       release.Language,
		HDR:             release.HDR,
		Audio:           release.Audio,
		Size:            entry.Size,
		IngestedAt:      p.now().UTC(),
	}
	if release.Series > 0 {
		record.Seasons = []int{release.Series}
	}
	if release.Episode > 0 {
		record.Episodes = []int{release.Episode}
	}
	return record, true
}

// releaseCategory classifies a parsed release. Anything carrying season or
// episode numbers is a series; every other non-adult release defaults to a
// movie, since the hashlists only carry video. Adult releases stay unknown
// and are never sent to the matcher.
func releaseCategory(release rls.Release) media.Category {
	switch {
	case release.Type == rls.Episode || release.Type == rls.Series:
		return media.CategorySeries
	case release.Series > 0 || release.Episode > 0:
		return media.CategorySeries
	case isAdult(release):
		return media.CategoryUnknown
	}
	return media.CategoryMovie
}

func isAdult(release rls.Release) bool {
	return strings.EqualFold(release.Collection, "XXX") || strings.EqualFold(release.Genre, "XXX")
}
