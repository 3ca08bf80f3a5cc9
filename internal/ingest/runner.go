package ingest

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"dmmsync/internal/catalog"
	"dmmsync/internal/config"
	"dmmsync/internal/hashlist"
	"dmmsync/internal/logging"
	"dmmsync/internal/parsing"
	"dmmsync/internal/pipeline"
	"dmmsync/internal/postgres"
	"dmmsync/internal/services"
	"dmmsync/internal/store"
)

// ErrLocked reports that another sync or retag already holds the run lock.
var ErrLocked = errors.New("another dmmsync sync is already running")

// Result describes one completed sync.
type Result struct {
	RunID       string
	Summary     pipeline.Summary
	Pages       hashlist.ProducerStats
	CatalogSize int
	CacheHits   int64
	CacheMisses int64
}

// Runner assembles the ingestion pipeline from configuration and executes
// single-instance syncs.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger
	lock   *flock.Flock

	parser pipeline.Parser
	sink   pipeline.Sink
}

// Option customizes a Runner.
type Option func(*Runner)

// WithParser overrides the configured parser backend.
func WithParser(parser pipeline.Parser) Option {
	return func(r *Runner) { r.parser = parser }
}

// WithSink overrides the configured torrent sink.
func WithSink(sink pipeline.Sink) Option {
	return func(r *Runner) { r.sink = sink }
}

// NewRunner validates cfg and prepares a runner.
func NewRunner(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "new runner", "config is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "ingest"),
		lock:   flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes one sync over every unprocessed page in the pages directory.
// A partial summary is returned alongside a producer error.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if err := r.cfg.EnsureDirectories(); err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "ingest", "prepare directories", "", err)
	}
	unlock, err := r.acquire()
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	result := Result{RunID: uuid.NewString()}
	ctx = services.WithRunID(ctx, result.RunID)
	logger := logging.WithContext(ctx, r.logger)

	st, err := store.Open(r.cfg)
	if err != nil {
		return result, services.Wrap(services.ErrStorage, "ingest", "open store", r.cfg.Storage.SQLitePath, err)
	}
	defer st.Close()

	blacklist, err := st.BlacklistSet(ctx)
	if err != nil {
		return result, services.Wrap(services.ErrStorage, "ingest", "load blacklist", "", err)
	}

	matcher, cache, size, err := r.buildMatcher(ctx, st)
	if err != nil {
		return result, err
	}
	result.CatalogSize = size

	parser := r.parser
	if parser == nil {
		parser = r.buildParser()
	}
	sink := r.sink
	if sink == nil {
		built, closeSink, err := r.buildSink(ctx, st)
		if err != nil {
			return result, err
		}
		defer closeSink()
		sink = built
	}

	pipe, err := pipeline.New(pipeline.FromConfig(r.cfg), parser, matcher, sink, pipeline.WithLogger(logger))
	if err != nil {
		return result, err
	}
	producer := hashlist.NewProducer(
		r.cfg.Paths.PagesDir,
		hashlist.NewExtractor(r.cfg.Ingestion.HashlistHost),
		st,
		logger,
	)

	logger.Info("sync started",
		logging.String("pages_dir", r.cfg.Paths.PagesDir),
		logging.String("sink", r.cfg.Storage.Sink),
		logging.String("parser", r.cfg.Parsing.Backend),
		logging.Int("catalog_size", size),
		logging.Int("blacklist_size", len(blacklist)),
	)
	summary, runErr := pipe.Run(ctx, producer, blacklist)
	result.Summary = summary
	result.Pages = producer.Stats()
	result.CacheHits, result.CacheMisses = cache.Stats()

	if !summary.Balanced() {
		logging.WarnWithContext(logger, "run summary does not balance", "summary_unbalanced",
			logging.Int("discovered", summary.Discovered),
			logging.Int("stored", summary.Stored),
			logging.Int("dropped", summary.Dropped()),
		)
	}
	logger.Info("sync finished",
		logging.Int("pages", result.Pages.Pages),
		logging.Int("pages_skipped", result.Pages.Skipped),
		logging.Int("stored", summary.Stored),
		logging.Int("matched", summary.Matched),
		logging.Int64("cache_hits", result.CacheHits),
		logging.Int64("cache_misses", result.CacheMisses),
	)
	return result, runErr
}

// buildMatcher loads the catalog snapshot into an index. With matching
// disabled the cache is nil, which reports zero hits and misses.
func (r *Runner) buildMatcher(ctx context.Context, st *store.Store) (pipeline.Matcher, *catalog.Cache, int, error) {
	if !r.cfg.Matching.Enabled {
		r.logger.Info("catalog matching disabled")
		return catalog.Disabled{}, nil, 0, nil
	}
	start := time.Now()
	entries, err := st.LoadCatalog(ctx, r.cfg.Matching.IncludeAdult)
	if err != nil {
		return nil, nil, 0, services.Wrap(services.ErrStorage, "ingest", "load catalog", "", err)
	}
	if len(entries) == 0 {
		logging.WarnWithContext(r.logger, "catalog snapshot is empty; nothing will match", "catalog_empty",
			logging.String(logging.FieldErrorHint, "run 'dmmsync catalog import <title.basics.tsv.gz>'"),
		)
	}
	index := catalog.NewIndex(entries, catalog.Options{TopK: r.cfg.Matching.TopK, MaxEdits: r.cfg.Matching.MaxEdits})
	workers := r.cfg.Matching.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	cache := catalog.NewCache()
	r.logger.Info("catalog index built",
		logging.Int("titles", index.Len()),
		logging.Int("workers", workers),
		logging.Duration("elapsed", time.Since(start)),
	)
	return catalog.NewMatcher(index, cache, workers, r.logger), cache, index.Len(), nil
}

func (r *Runner) buildParser() pipeline.Parser {
	if r.cfg.Parsing.Backend == config.ParserHTTP {
		timeout := time.Duration(r.cfg.Parsing.TimeoutSeconds) * time.Second
		return parsing.NewHTTPClient(r.cfg.Parsing.Endpoint, r.cfg.Parsing.RequestsPerSecond, timeout)
	}
	return parsing.NewRLSParser()
}

func (r *Runner) buildSink(ctx context.Context, st *store.Store) (pipeline.Sink, func(), error) {
	if r.cfg.Storage.Sink != config.SinkPostgres {
		return st, func() {}, nil
	}
	sink, err := postgres.Open(ctx, r.cfg.Storage.PostgresDSN, r.cfg.Storage.PostgresMaxConns)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrStorage, "ingest", "open postgres sink", "", err)
	}
	return sink, sink.Close, nil
}
