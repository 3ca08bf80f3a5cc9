package hashlist

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"dmmsync/internal/logging"
	"dmmsync/internal/media"
	"dmmsync/internal/services"
)

// Ledger persists which pages have been extracted and how many entries each
// yielded.
type Ledger interface {
	ProcessedPages(ctx context.Context) (map[string]int, error)
	RecordPage(ctx context.Context, page string, entryCount int) error
}

// ProducerStats summarizes one Produce call.
type ProducerStats struct {
	Pages    int
	Skipped  int
	Misses   int
	Failures int
	Entries  int
}

// Producer emits the entries of every unprocessed page in a directory.
type Producer struct {
	dir       string
	extractor *Extractor
	ledger    Ledger
	logger    *slog.Logger
	progress  *rate.Sometimes
	stats     ProducerStats
}

// NewProducer wires a page producer over dir.
func NewProducer(dir string, extractor *Extractor, ledger Ledger, logger *slog.Logger) *Producer {
	if extractor == nil {
		extractor = NewExtractor("")
	}
	return &Producer{
		dir:       dir,
		extractor: extractor,
		ledger:    ledger,
		logger:    logging.NewComponentLogger(logger, "hashlist"),
		progress:  &rate.Sometimes{Interval: 10 * time.Second},
	}
}

// Stats returns the counters of the last Produce call. Only valid after
// Produce has returned.
func (p *Producer) Stats() ProducerStats {
	return p.stats
}

// Produce walks the page directory in name order. Pages already in the ledger
// are skipped. Each new page is recorded in the ledger as soon as it has been
// extracted and before its entries are emitted, so a page is never read
// twice even if its entries later fail downstream. Cancellation is checked
// between pages; a page that has started is always emitted in full.
func (p *Producer) Produce(ctx context.Context, out chan<- media.Item) error {
	p.stats = ProducerStats{}
	pages, err := DiscoverPages(p.dir)
	if err != nil {
		return err
	}
	processed, err := p.ledger.ProcessedPages(ctx)
	if err != nil {
		return fmt.Errorf("load page ledger: %w", err)
	}
	p.logger.Info("hashlist pages discovered",
		logging.Int("pages", len(pages)),
		logging.Int("already_processed", len(processed)),
		logging.String("dir", p.dir),
	)

	for _, path := range pages {
		if err := ctx.Err(); err != nil {
			p.logger.Info("page walk cancelled", logging.Int("pages_done", p.stats.Pages))
			return err
		}
		page := filepath.Base(path)
		if _, done := processed[page]; done {
			p.stats.Skipped++
			continue
		}
		p.producePage(context.WithoutCancel(services.WithPage(ctx, page)), path, page, out)
		processed[page] = 0

		p.progress.Do(func() {
			p.logger.Info("hashlist progress",
				logging.Int("pages", p.stats.Pages),
				logging.Int("entries", p.stats.Entries),
				logging.Int("skipped", p.stats.Skipped),
			)
		})
	}

	p.logger.Info("hashlist pages processed",
		logging.Int("pages", p.stats.Pages),
		logging.Int("skipped", p.stats.Skipped),
		logging.Int("misses", p.stats.Misses),
		logging.Int("failures", p.stats.Failures),
		logging.Int("entries", p.stats.Entries),
	)
	return nil
}

func (p *Producer) producePage(ctx context.Context, path, page string, out chan<- media.Item) {
	logger := logging.WithContext(ctx, p.logger)

	data, err := os.ReadFile(path)
	if err != nil {
		// Left out of the ledger so the next run retries it.
		p.stats.Failures++
		out <- media.Item{Err: services.Wrap(services.ErrTransient, "extract", "read page", page, err)}
		return
	}

	result, err := p.extractor.Extract(string(data))
	p.stats.Pages++
	switch {
	case err != nil:
		p.stats.Failures++
		logging.WarnWithContext(logger, "hashlist page unreadable; recorded with no entries", "page_extract_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "page entries skipped until the ledger row is removed"),
			logging.String(logging.FieldErrorHint, "run 'dmmsync pages forget' after fixing the page"),
		)
	case result.Miss:
		p.stats.Misses++
		logger.Debug("no hashlist payload on page")
	}

	if err := p.ledger.RecordPage(ctx, page, len(result.Entries)); err != nil {
		logging.WarnWithContext(logger, "page ledger update failed", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "page will be re-read on the next run"),
		)
	}

	for _, entry := range result.Entries {
		out <- media.Item{Entry: entry}
	}
	p.stats.Entries += len(result.Entries)
}

// DiscoverPages lists the hashlist pages in dir: regular *.html files other
// than index.html and 404.html, sorted by name.
func DiscoverPages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read pages dir: %w", err)
	}
	pages := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.EqualFold(filepath.Ext(name), ".html") {
			continue
		}
		switch strings.ToLower(name) {
		case "index.html", "404.html":
			continue
		}
		pages = append(pages, filepath.Join(dir, name))
	}
	sort.Strings(pages)
	return pages, nil
}
