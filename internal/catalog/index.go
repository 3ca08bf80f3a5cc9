package catalog

import (
	"sort"

	"dmmsync/internal/media"
	"dmmsync/internal/textutil"
)

const (
	DefaultTopK     = 10
	DefaultMaxEdits = 2

	// yearWindowBoost applies to candidates within one year of the query or
	// with an unknown year; exact years receive yearExactBoost on top.
	yearWindowBoost = 0.15
	yearExactBoost  = 0.10
)

// Entry is one catalog title.
type Entry struct {
	ImdbID          string
	Title           string
	NormalizedTitle string
	Year            int
	Category        media.Category
	Adult           bool
}

// YearCompatible reports whether the entry may describe a release from year.
// A zero on either side is a wildcard.
func (e Entry) YearCompatible(year int) bool {
	if year <= 0 || e.Year == 0 {
		return true
	}
	diff := e.Year - year
	return diff >= -1 && diff <= 1
}

// Options tunes index queries.
type Options struct {
	TopK int
	// MaxEdits caps the edit budget; 0 requires exact titles.
	MaxEdits int
}

// DefaultOptions returns the query options used when none are configured.
func DefaultOptions() Options {
	return Options{TopK: DefaultTopK, MaxEdits: DefaultMaxEdits}
}

func (o Options) withDefaults() Options {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	o.MaxEdits = max(0, min(o.MaxEdits, DefaultMaxEdits))
	return o
}

// Candidate is one ranked query result.
type Candidate struct {
	Entry    Entry
	Distance int
	Score    float64
	position int
}

type bucketKey struct {
	category media.Category
	first    rune
}

type indexedTitle struct {
	position int
	runes    []rune
}

// Index is an immutable fuzzy title index. It is safe for concurrent queries.
type Index struct {
	entries []Entry
	buckets map[bucketKey][]indexedTitle
	opts    Options
}

// NewIndex builds an index over entries. Entries without a usable title or
// with a category that cannot be matched are left out.
func NewIndex(entries []Entry, opts Options) *Index {
	idx := &Index{
		entries: make([]Entry, 0, len(entries)),
		buckets: make(map[bucketKey][]indexedTitle),
		opts:    opts.withDefaults(),
	}
	for _, entry := range entries {
		idx.add(entry)
	}
	for key, bucket := range idx.buckets {
		sort.SliceStable(bucket, func(i, j int) bool {
			return len(bucket[i].runes) < len(bucket[j].runes)
		})
		idx.buckets[key] = bucket
	}
	return idx
}

func (idx *Index) add(entry Entry) {
	if !entry.Category.Matchable() || entry.ImdbID == "" {
		return
	}
	if entry.NormalizedTitle == "" {
		entry.NormalizedTitle = textutil.NormalizeTitle(entry.Title)
	}
	if entry.NormalizedTitle == "" {
		return
	}
	title := []rune(entry.NormalizedTitle)
	key := bucketKey{category: entry.Category, first: title[0]}
	idx.buckets[key] = append(idx.buckets[key], indexedTitle{position: len(idx.entries), runes: title})
	idx.entries = append(idx.entries, entry)
}

// Len returns the number of indexed entries.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Options returns the effective query options.
func (idx *Index) Options() Options {
	return idx.opts
}

// Query ranks the entries whose normalized title is within the edit budget of
// title and whose category equals category. A positive year restricts the
// result to YearCompatible entries before truncation, so distant-year
// namesakes cannot crowd an eligible title out of the TopK. Results are
// ordered by score, then by index order.
func (idx *Index) Query(title string, year int, category media.Category) []Candidate {
	if idx == nil || !category.Matchable() {
		return nil
	}
	query := []rune(textutil.NormalizeTitle(title))
	if len(query) == 0 {
		return nil
	}
	bucket := idx.buckets[bucketKey{category: category, first: query[0]}]
	if len(bucket) == 0 {
		return nil
	}

	budget := min(editBudget(len(query)), idx.opts.MaxEdits)
	lo := sort.Search(len(bucket), func(i int) bool {
		return len(bucket[i].runes) >= len(query)-budget
	})

	var candidates []Candidate
	for _, item := range bucket[lo:] {
		if len(item.runes) > len(query)+budget {
			break
		}
		dist := textutil.Distance(query, item.runes, budget)
		if dist > budget {
			continue
		}
		entry := idx.entries[item.position]
		if !entry.YearCompatible(year) {
			continue
		}
		candidates = append(candidates, Candidate{
			Entry:    entry,
			Distance: dist,
			Score:    score(dist, len(query), len(item.runes), year, entry.Year),
			position: item.position,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].position < candidates[j].position
	})
	if len(candidates) > idx.opts.TopK {
		candidates = candidates[:idx.opts.TopK]
	}
	return candidates
}

// editBudget mirrors the usual AUTO fuzziness: exact for very short terms,
// one edit for short ones, two otherwise.
func editBudget(length int) int {
	switch {
	case length <= 2:
		return 0
	case length <= 5:
		return 1
	default:
		return 2
	}
}

func score(dist, queryLen, titleLen, year, entryYear int) float64 {
	s := 1 - float64(dist)/float64(min(queryLen, titleLen))
	if year <= 0 {
		return s
	}
	if entryYear == 0 || (entryYear-year >= -1 && entryYear-year <= 1) {
		s += yearWindowBoost
	}
	if entryYear == year {
		s += yearExactBoost
	}
	return s
}
