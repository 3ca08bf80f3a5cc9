package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"dmmsync/internal/hashlist"
	"dmmsync/internal/logging"
	"dmmsync/internal/media"
	"dmmsync/internal/services"
)

const (
	stageCollect = "collect"
	stageParse   = "parse"
	stageMatch   = "match"
	stageStore   = "store"
)

// runCollect batches produced entries by info hash. It consumes items until
// the producer closes the channel, so entries already produced are never
// stranded; cancellation only stops the producer.
func (p *Pipeline) runCollect(ctx context.Context, items <-chan media.Item, out chan<- *entryBatch, blacklist map[string]struct{}) {
	ctx = services.WithStage(ctx, stageCollect)
	logger := logging.WithContext(ctx, logging.NewStageLogger(p.logger, stageCollect))
	cancelNoted := false

	batch := p.entries.get()
	flush := func() {
		if len(batch.entries) == 0 {
			return
		}
		_, removed := hashlist.Filter(batch.entries, blacklist)
		p.counters.blacklisted.Add(int64(removed))
		if len(batch.entries) == 0 {
			logger.Debug("batch fully blacklisted", logging.Int("removed", removed))
			return
		}
		p.counters.batches.Add(1)
		logger.Debug("batch collected",
			logging.Int(logging.FieldBatchSize, len(batch.entries)),
			logging.Int("blacklisted", removed),
		)
		out <- batch
		batch = p.entries.get()
	}
	defer func() { p.entries.put(batch) }()

	for item := range items {
		if !cancelNoted && ctx.Err() != nil {
			cancelNoted = true
			logger.Info("cancellation observed; draining entries already produced")
		}
		p.counters.discovered.Add(1)
		if item.Err != nil {
			p.counters.invalid.Add(1)
			logging.WarnWithContext(logger, "producer item failed", "item_failed",
				logging.Error(item.Err),
				logging.String(logging.FieldImpact, "item skipped; batch continues"),
			)
			continue
		}
		entry := item.Entry
		if !entry.Valid() {
			p.counters.invalid.Add(1)
			logger.Debug("invalid entry skipped", logging.String(logging.FieldInfoHash, entry.InfoHash))
			continue
		}
		if _, dup := batch.entries[entry.InfoHash]; dup {
			p.counters.duplicates.Add(1)
			continue
		}
		batch.entries[entry.InfoHash] = entry
		if len(batch.entries) >= p.cfg.BatchSize {
			flush()
		}
	}
	flush()
}

func (p *Pipeline) runParse(ctx context.Context, in <-chan *entryBatch, out chan<- *recordBatch) {
	ctx = services.WithStage(ctx, stageParse)
	logger := logging.WithContext(ctx, logging.NewStageLogger(p.logger, stageParse))
	for batch := range in {
		p.parseBatch(ctx, logger, batch, out)
	}
}

func (p *Pipeline) parseBatch(ctx context.Context, logger *slog.Logger, batch *entryBatch, out chan<- *recordBatch) {
	defer p.entries.put(batch)

	for _, entry := range batch.entries {
		batch.list = append(batch.list, entry)
	}
	sort.Slice(batch.list, func(i, j int) bool { return batch.list[i].InfoHash < batch.list[j].InfoHash })
	sent := len(batch.list)

	parsed, err := p.parser.ParseBatch(ctx, batch.list)
	if err != nil {
		p.counters.failed.Add(int64(sent))
		logging.WarnWithContext(logger, "parse batch failed; batch dropped", "parse_failed",
			logging.Error(err),
			logging.Int(logging.FieldBatchSize, sent),
			logging.String(logging.FieldErrorHint, "check the parser backend"),
		)
		return
	}

	records := p.records.get()
	for _, record := range parsed {
		if record == nil {
			continue
		}
		// Deleting as we go also drops a second record for the same hash.
		if _, ok := batch.entries[record.InfoHash]; !ok {
			continue
		}
		delete(batch.entries, record.InfoHash)
		records.records = append(records.records, record)
	}
	p.counters.parsed.Add(int64(len(records.records)))
	p.counters.unparsed.Add(int64(sent - len(records.records)))
	logger.Debug("batch parsed",
		logging.Int(logging.FieldBatchSize, sent),
		logging.Int("parsed", len(records.records)),
	)

	if len(records.records) == 0 {
		p.records.put(records)
		return
	}
	out <- records
}

func (p *Pipeline) runMatch(ctx context.Context, in <-chan *recordBatch, out chan<- *recordBatch) {
	ctx = services.WithStage(ctx, stageMatch)
	logger := logging.WithContext(ctx, logging.NewStageLogger(p.logger, stageMatch))
	for batch := range in {
		matched, err := p.matcher.MatchBatch(ctx, batch.records)
		if err != nil {
			p.counters.failed.Add(int64(len(batch.records)))
			logging.WarnWithContext(logger, "match batch failed; batch dropped", "match_failed",
				logging.Error(err),
				logging.Int(logging.FieldBatchSize, len(batch.records)),
				logging.String(logging.FieldErrorHint, "check the catalog snapshot with 'dmmsync catalog search'"),
			)
			p.records.put(batch)
			continue
		}
		p.counters.matched.Add(int64(matched))
		out <- batch
	}
}

func (p *Pipeline) runStore(ctx context.Context, in <-chan *recordBatch) {
	ctx = services.WithStage(ctx, stageStore)
	logger := logging.WithContext(ctx, logging.NewStageLogger(p.logger, stageStore))
	progress := rate.Sometimes{Interval: 15 * time.Second}
	for batch := range in {
		count := len(batch.records)
		if err := p.sink.StoreTorrents(ctx, batch.records); err != nil {
			p.counters.failed.Add(int64(count))
			logging.WarnWithContext(logger, "store batch failed; batch dropped", "store_failed",
				logging.Error(err),
				logging.Int(logging.FieldBatchSize, count),
				logging.String(logging.FieldImpact, "batch lost until its pages are forgotten and re-synced"),
				logging.String(logging.FieldErrorHint, "fix storage, then run 'dmmsync pages forget' for the affected pages"),
			)
		} else {
			p.counters.stored.Add(int64(count))
		}
		p.records.put(batch)

		progress.Do(func() {
			logger.Info("ingestion progress",
				logging.Int64("discovered", p.counters.discovered.Load()),
				logging.Int64("stored", p.counters.stored.Load()),
				logging.Int64("matched", p.counters.matched.Load()),
				logging.Int64("failed", p.counters.failed.Load()),
			)
		})
	}
}
