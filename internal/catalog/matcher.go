package catalog

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"dmmsync/internal/logging"
	"dmmsync/internal/media"
	"dmmsync/internal/services"
)

// Matcher attaches catalog identifiers to parsed records.
type Matcher struct {
	index   *Index
	cache   *Cache
	workers int
	logger  *slog.Logger
}

// NewMatcher returns a matcher over index. cache may be shared with other
// matchers in the same run; workers <= 0 selects runtime.NumCPU().
func NewMatcher(index *Index, cache *Cache, workers int, logger *slog.Logger) *Matcher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if cache == nil {
		cache = NewCache()
	}
	return &Matcher{
		index:   index,
		cache:   cache,
		workers: workers,
		logger:  logging.NewComponentLogger(logger, "matcher"),
	}
}

// Cache returns the run cache used by MatchBatch.
func (m *Matcher) Cache() *Cache {
	return m.cache
}

// ResolveBest returns the highest scoring catalog entry for record among the
// candidates Query returns, which are already limited to compatible years.
// The first candidate wins exact score ties. cache may be nil.
func (m *Matcher) ResolveBest(record *media.Record, cache *Cache) (Entry, bool) {
	if record == nil || !record.Category.Matchable() || record.NormalizedTitle == "" {
		return Entry{}, false
	}
	if entry, matched, found := cache.Lookup(record.NormalizedTitle, record.Category, record.Year); found {
		if !matched {
			m.logNoMatch(record)
		}
		return entry, matched
	}

	var (
		best      Candidate
		bestFound bool
	)
	for _, candidate := range m.index.Query(record.NormalizedTitle, record.Year, record.Category) {
		if !bestFound || candidate.Score > best.Score {
			best = candidate
			bestFound = true
		}
	}

	cache.Store(record.NormalizedTitle, record.Category, record.Year, best.Entry, bestFound)
	if !bestFound {
		m.logNoMatch(record)
		return Entry{}, false
	}
	return best.Entry, true
}

func (m *Matcher) logNoMatch(record *media.Record) {
	m.logger.Debug("no catalog match",
		logging.String(logging.FieldInfoHash, record.InfoHash),
		logging.String("title", record.NormalizedTitle),
		logging.Int("year", record.Year),
		logging.String("category", string(record.Category)),
	)
}

type groupKey struct {
	year     int
	category media.Category
}

// MatchBatch resolves records in place and returns how many gained an
// identifier. Records are grouped by (year, category); groups run
// concurrently up to the worker limit and each group is processed in order.
// Records that already carry an identifier are left untouched.
func (m *Matcher) MatchBatch(ctx context.Context, records []*media.Record) (int, error) {
	if m == nil || m.index == nil {
		return 0, services.Wrap(services.ErrMatchingUnavailable, "match", "match batch", "catalog index not loaded", nil)
	}

	order := make([]groupKey, 0)
	groups := make(map[groupKey][]*media.Record)
	for _, record := range records {
		if record == nil || record.Matched() || !record.Category.Matchable() {
			continue
		}
		key := groupKey{year: record.Year, category: record.Category}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], record)
	}
	if len(order) == 0 {
		return 0, nil
	}

	var matched atomic.Int64
	var g errgroup.Group
	g.SetLimit(m.workers)
	for _, key := range order {
		group := groups[key]
		g.Go(func() error {
			for _, record := range group {
				if entry, ok := m.ResolveBest(record, m.cache); ok {
					record.ImdbID = entry.ImdbID
					matched.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(matched.Load()), err
	}

	hits, misses := m.cache.Stats()
	logging.WithContext(ctx, m.logger).Debug("batch matched",
		logging.Int(logging.FieldBatchSize, len(records)),
		logging.Int("groups", len(order)),
		logging.Int64("matched", matched.Load()),
		logging.Int64("cache_hits", hits),
		logging.Int64("cache_misses", misses),
	)
	return int(matched.Load()), nil
}

// Disabled is a matcher that leaves every record unmatched.
type Disabled struct{}

// MatchBatch implements the pipeline matcher contract.
func (Disabled) MatchBatch(context.Context, []*media.Record) (int, error) {
	return 0, nil
}
