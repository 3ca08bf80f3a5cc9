package catalog

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"
	"strings"

	"dmmsync/internal/media"
	"dmmsync/internal/textutil"
)

const basicsColumns = 9

// titleTypes lists the IMDb title types worth matching against.
var titleTypes = map[string]media.Category{
	"movie":        media.CategoryMovie,
	"tvMovie":      media.CategoryMovie,
	"tvSeries":     media.CategorySeries,
	"tvMiniSeries": media.CategorySeries,
	"tvShort":      media.CategorySeries,
	"tvSpecial":    media.CategorySeries,
}

// TSVStats counts what a basics import saw.
type TSVStats struct {
	Rows     int
	Imported int
	Skipped  int
}

// ReadBasicsTSV streams an IMDb title.basics.tsv dump, plain or gzipped, and
// calls fn for every movie or series row. Adult titles are skipped unless
// includeAdult is set. An error from fn stops the read and is returned.
func ReadBasicsTSV(r io.Reader, includeAdult bool, fn func(Entry) error) (TSVStats, error) {
	var stats TSVStats

	buffered := bufio.NewReaderSize(r, 64*1024)
	if magic, err := buffered.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			return stats, fmt.Errorf("open gzip stream: %w", err)
		}
		defer gz.Close()
		buffered = bufio.NewReaderSize(gz, 64*1024)
	}

	scanner := bufio.NewScanner(buffered)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if line == 1 && bytes.HasPrefix(raw, []byte("tconst\t")) {
			continue
		}
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		stats.Rows++

		entry, ok := parseBasicsRow(string(raw), includeAdult)
		if !ok {
			stats.Skipped++
			continue
		}
		if err := fn(entry); err != nil {
			return stats, err
		}
		stats.Imported++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read basics line %d: %w", line+1, err)
	}
	return stats, nil
}

func parseBasicsRow(row string, includeAdult bool) (Entry, bool) {
	cols := strings.Split(row, "\t")
	if len(cols) < basicsColumns {
		return Entry{}, false
	}
	category, ok := titleTypes[cols[1]]
	if !ok {
		return Entry{}, false
	}
	adult := cols[4] == "1"
	if adult && !includeAdult {
		return Entry{}, false
	}
	title := strings.TrimSpace(cols[2])
	normalized := textutil.NormalizeTitle(title)
	if cols[0] == "" || normalized == "" {
		return Entry{}, false
	}
	year := 0
	if cols[5] != `\N` {
		if v, err := strconv.Atoi(cols[5]); err == nil && v > 0 {
			year = v
		}
	}
	return Entry{
		ImdbID:          cols[0],
		Title:           title,
		NormalizedTitle: normalized,
		Year:            year,
		Category:        category,
		Adult:           adult,
	}, true
}
