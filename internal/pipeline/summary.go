package pipeline

import (
	"sync/atomic"
	"time"
)

// Summary aggregates the outcome of one run.
type Summary struct {
	Discovered  int
	Invalid     int
	Duplicates  int
	Blacklisted int
	Parsed      int
	Unparsed    int
	Matched     int
	Stored      int
	Failed      int
	Batches     int
	Elapsed     time.Duration
}

// Dropped counts every discovered item that did not reach storage.
func (s Summary) Dropped() int {
	return s.Invalid + s.Duplicates + s.Blacklisted + s.Unparsed + s.Failed
}

// Balanced reports whether every discovered item is accounted for.
func (s Summary) Balanced() bool {
	return s.Discovered == s.Stored+s.Dropped()
}

type counters struct {
	discovered  atomic.Int64
	invalid     atomic.Int64
	duplicates  atomic.Int64
	blacklisted atomic.Int64
	parsed      atomic.Int64
	unparsed    atomic.Int64
	matched     atomic.Int64
	stored      atomic.Int64
	failed      atomic.Int64
	batches     atomic.Int64
}

func (c *counters) reset() {
	for _, v := range []*atomic.Int64{
		&c.discovered, &c.invalid, &c.duplicates, &c.blacklisted, &c.parsed,
		&c.unparsed, &c.matched, &c.stored, &c.failed, &c.batches,
	} {
		v.Store(0)
	}
}

func (c *counters) snapshot(elapsed time.Duration) Summary {
	return Summary{
		Discovered:  int(c.discovered.Load()),
		Invalid:     int(c.invalid.Load()),
		Duplicates:  int(c.duplicates.Load()),
		Blacklisted: int(c.blacklisted.Load()),
		Parsed:      int(c.parsed.Load()),
		Unparsed:    int(c.unparsed.Load()),
		Matched:     int(c.matched.Load()),
		Stored:      int(c.stored.Load()),
		Failed:      int(c.failed.Load()),
		Batches:     int(c.batches.Load()),
		Elapsed:     elapsed,
	}
}
