package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"dmmsync/internal/config"
	"dmmsync/internal/logging"
	"dmmsync/internal/media"
	"dmmsync/internal/services"
)

// Producer emits entries onto out. The pipeline closes out after Produce
// returns.
type Producer interface {
	Produce(ctx context.Context, out chan<- media.Item) error
}

// Parser turns a batch of entries into zero or more records, matched back to
// the entries by info hash.
type Parser interface {
	ParseBatch(ctx context.Context, entries []media.Entry) ([]*media.Record, error)
}

// Matcher attaches catalog identifiers in place and returns how many records
// it matched.
type Matcher interface {
	MatchBatch(ctx context.Context, records []*media.Record) (int, error)
}

// Sink persists records idempotently keyed by info hash.
type Sink interface {
	StoreTorrents(ctx context.Context, records []*media.Record) error
}

// Config sizes batches and the four stage queues.
type Config struct {
	BatchSize          int
	IngestionQueueSize int
	ParseQueueSize     int
	MatchQueueSize     int
	StoreQueueSize     int
}

// FromConfig extracts pipeline sizing from the application config.
func FromConfig(cfg *config.Config) Config {
	return Config{
		BatchSize:          cfg.Ingestion.BatchSize,
		IngestionQueueSize: cfg.Ingestion.IngestionQueueSize,
		ParseQueueSize:     cfg.Ingestion.ParseQueueSize,
		MatchQueueSize:     cfg.Ingestion.MatchQueueSize,
		StoreQueueSize:     cfg.Ingestion.StoreQueueSize,
	}
}

// Validate checks that every size is positive.
func (c Config) Validate() error {
	sizes := []struct {
		name  string
		value int
	}{
		{"batch size", c.BatchSize},
		{"ingestion queue size", c.IngestionQueueSize},
		{"parse queue size", c.ParseQueueSize},
		{"match queue size", c.MatchQueueSize},
		{"store queue size", c.StoreQueueSize},
	}
	for _, size := range sizes {
		if size.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", size.name, size.value)
		}
	}
	return nil
}

// Option configures optional Pipeline behavior.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithStateObserver registers fn to be called on every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// Pipeline wires the four stages for repeated, non-overlapping runs.
type Pipeline struct {
	cfg      Config
	parser   Parser
	matcher  Matcher
	sink     Sink
	logger   *slog.Logger
	observer func(State)

	entries *entryArena
	records *recordArena

	mu       sync.RWMutex
	state    State
	counters counters
}

// New validates sizing and collaborators and returns an idle pipeline.
func New(cfg Config, parser Parser, matcher Matcher, sink Sink, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "validate", "", err)
	}
	if parser == nil || matcher == nil || sink == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "validate", "parser, matcher and sink are required", nil)
	}
	p := &Pipeline{
		cfg:     cfg,
		parser:  parser,
		matcher: matcher,
		sink:    sink,
		logger:  logging.NewNop(),
		entries: newEntryArena(cfg.BatchSize),
		records: newRecordArena(cfg.BatchSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "pipeline")
	return p, nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Pipeline) setState(state State) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
	p.notify(state)
}

func (p *Pipeline) notify(state State) {
	p.logger.Debug("pipeline state changed", logging.String("state", state.String()))
	if p.observer != nil {
		p.observer(state)
	}
}

// Run drives producer through all four stages and returns the aggregate
// counts. Cancelling ctx stops the producer at its next boundary; everything
// already produced is still carried through to the sink. The returned error
// is non-nil only when the run could not start or the producer failed; the
// summary is complete in both cases once the run has started.
func (p *Pipeline) Run(ctx context.Context, producer Producer, blacklist map[string]struct{}) (Summary, error) {
	if producer == nil {
		return Summary{}, services.Wrap(services.ErrConfiguration, "pipeline", "run", "producer is required", nil)
	}
	p.mu.Lock()
	if p.state.active() {
		p.mu.Unlock()
		return Summary{}, errors.New("pipeline already running")
	}
	p.counters.reset()
	p.state = StateRunning
	p.mu.Unlock()
	p.notify(StateRunning)

	start := time.Now()
	logger := logging.WithContext(ctx, p.logger)
	logger.Info("ingestion run started",
		logging.Int(logging.FieldBatchSize, p.cfg.BatchSize),
		logging.Int("blacklist_size", len(blacklist)),
	)

	items := make(chan media.Item, p.cfg.IngestionQueueSize)
	parseQ := make(chan *entryBatch, p.cfg.ParseQueueSize)
	matchQ := make(chan *recordBatch, p.cfg.MatchQueueSize)
	storeQ := make(chan *recordBatch, p.cfg.StoreQueueSize)

	// Downstream stages finish queued batches even after cancellation.
	drainCtx := context.WithoutCancel(ctx)

	parseDone := p.startStage(func() { p.runParse(drainCtx, parseQ, matchQ) })
	matchDone := p.startStage(func() { p.runMatch(drainCtx, matchQ, storeQ) })
	storeDone := p.startStage(func() { p.runStore(drainCtx, storeQ) })

	var front errgroup.Group
	front.Go(func() error {
		defer close(items)
		return producer.Produce(ctx, items)
	})
	front.Go(func() error {
		p.runCollect(ctx, items, parseQ, blacklist)
		return nil
	})
	produceErr := front.Wait()

	p.setState(StateDrainingParse)
	close(parseQ)
	<-parseDone

	p.setState(StateDrainingMatch)
	close(matchQ)
	<-matchDone

	p.setState(StateDrainingStore)
	close(storeQ)
	<-storeDone

	summary := p.counters.snapshot(time.Since(start))
	p.setState(StateCompleted)

	attrs := []logging.Attr{
		logging.Int("discovered", summary.Discovered),
		logging.Int("invalid", summary.Invalid),
		logging.Int("duplicates", summary.Duplicates),
		logging.Int("blacklisted", summary.Blacklisted),
		logging.Int("parsed", summary.Parsed),
		logging.Int("unparsed", summary.Unparsed),
		logging.Int("matched", summary.Matched),
		logging.Int("stored", summary.Stored),
		logging.Int("failed", summary.Failed),
		logging.Int("batches", summary.Batches),
		logging.Duration("elapsed", summary.Elapsed),
	}
	if produceErr != nil {
		attrs = append(attrs, logging.Error(produceErr))
		logging.WarnWithContext(logger, "ingestion run ended early", "run_incomplete",
			append(attrs, logging.String(logging.FieldImpact, "remaining pages will be read on the next run"))...)
		return summary, fmt.Errorf("produce entries: %w", produceErr)
	}
	logger.Info("ingestion run completed", logging.Args(attrs...)...)
	return summary, nil
}

func (p *Pipeline) startStage(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}
