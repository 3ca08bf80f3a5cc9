package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dmmsync/internal/config"
	"dmmsync/internal/logging"
	"dmmsync/internal/services"
	"dmmsync/internal/store"
)

// RetagResult describes one retag pass over stored torrents.
type RetagResult struct {
	RunID       string
	Scanned     int
	Matched     int
	Changed     int
	CatalogSize int
	Elapsed     time.Duration
}

// Retag re-runs catalog matching over torrents already in the sqlite sink,
// typically after a catalog import. By default only torrents without an
// identifier are considered; with all set every non-adult torrent is matched
// from scratch, and an identifier the catalog no longer supports is cleared.
// Retag takes the sync lock, so it never overlaps a sync.
func (r *Runner) Retag(ctx context.Context, all bool) (RetagResult, error) {
	if r.cfg.Storage.Sink == config.SinkPostgres {
		return RetagResult{}, services.Wrap(services.ErrConfiguration, "ingest", "retag",
			"retag rewrites the sqlite torrents table; the postgres sink is not supported", nil)
	}
	if !r.cfg.Matching.Enabled {
		return RetagResult{}, services.Wrap(services.ErrConfiguration, "ingest", "retag",
			"matching is disabled; set matching.enabled = true", nil)
	}
	if err := r.cfg.EnsureDirectories(); err != nil {
		return RetagResult{}, services.Wrap(services.ErrConfiguration, "ingest", "prepare directories", "", err)
	}
	unlock, err := r.acquire()
	if err != nil {
		return RetagResult{}, err
	}
	defer unlock()

	start := time.Now()
	result := RetagResult{RunID: uuid.NewString()}
	ctx = services.WithStage(services.WithRunID(ctx, result.RunID), "retag")
	logger := logging.WithContext(ctx, r.logger)

	st, err := store.Open(r.cfg)
	if err != nil {
		return result, services.Wrap(services.ErrStorage, "ingest", "open store", r.cfg.Storage.SQLitePath, err)
	}
	defer st.Close()

	matcher, _, size, err := r.buildMatcher(ctx, st)
	if err != nil {
		return result, err
	}
	result.CatalogSize = size
	logger.Info("retag started", logging.String("scope", retagScope(all)), logging.Int("catalog_size", size))

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		page, err := st.TorrentPage(ctx, after, r.cfg.Ingestion.BatchSize, !all)
		if err != nil {
			return result, err
		}
		if len(page) == 0 {
			break
		}
		after = page[len(page)-1].InfoHash

		previous := make(map[string]string, len(page))
		for _, record := range page {
			previous[record.InfoHash] = record.ImdbID
			if all {
				record.ImdbID = ""
			}
		}
		matched, err := matcher.MatchBatch(ctx, page)
		if err != nil {
			return result, err
		}

		updates := make(map[string]string, len(page))
		for _, record := range page {
			if record.ImdbID != previous[record.InfoHash] {
				updates[record.InfoHash] = record.ImdbID
			}
		}
		changed, err := st.SetImdbIDs(ctx, updates)
		if err != nil {
			return result, err
		}
		result.Scanned += len(page)
		result.Matched += matched
		result.Changed += changed
		logger.Debug("retag batch",
			logging.Int(logging.FieldBatchSize, len(page)),
			logging.Int("matched", matched),
			logging.Int("changed", changed),
		)
	}

	result.Elapsed = time.Since(start)
	logger.Info("retag finished",
		logging.Int("scanned", result.Scanned),
		logging.Int("matched", result.Matched),
		logging.Int("changed", result.Changed),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func retagScope(all bool) string {
	if all {
		return "all"
	}
	return "missing"
}

// acquire takes the run lock shared by syncs and retags.
func (r *Runner) acquire() (func(), error) {
	ok, err := r.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		if err := r.lock.Unlock(); err != nil {
			r.logger.Warn("failed to release sync lock", logging.Error(err))
		}
	}, nil
}
