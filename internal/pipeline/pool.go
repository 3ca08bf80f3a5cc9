package pipeline

import (
	"sync"
	"sync/atomic"

	"dmmsync/internal/media"
)

type entryBatch struct {
	entries map[string]media.Entry
	list    []media.Entry
}

type recordBatch struct {
	records []*media.Record
}

// entryArena hands out entry batches. Every get must be paired with a put on
// all exit paths; put clears the batch before it can be reused.
type entryArena struct {
	pool        sync.Pool
	outstanding atomic.Int64
}

func newEntryArena(capacity int) *entryArena {
	a := &entryArena{}
	a.pool.New = func() any {
		return &entryBatch{
			entries: make(map[string]media.Entry, capacity),
			list:    make([]media.Entry, 0, capacity),
		}
	}
	return a
}

func (a *entryArena) get() *entryBatch {
	a.outstanding.Add(1)
	return a.pool.Get().(*entryBatch)
}

func (a *entryArena) put(b *entryBatch) {
	if b == nil {
		return
	}
	clear(b.entries)
	clear(b.list)
	b.list = b.list[:0]
	a.outstanding.Add(-1)
	a.pool.Put(b)
}

type recordArena struct {
	pool        sync.Pool
	outstanding atomic.Int64
}

func newRecordArena(capacity int) *recordArena {
	a := &recordArena{}
	a.pool.New = func() any {
		return &recordBatch{records: make([]*media.Record, 0, capacity)}
	}
	return a
}

func (a *recordArena) get() *recordBatch {
	a.outstanding.Add(1)
	return a.pool.Get().(*recordBatch)
}

func (a *recordArena) put(b *recordBatch) {
	if b == nil {
		return
	}
	clear(b.records)
	b.records = b.records[:0]
	a.outstanding.Add(-1)
	a.pool.Put(b)
}
