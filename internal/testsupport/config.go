package testsupport

import (
	"path/filepath"
	"testing"

	"dmmsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.PagesDir = filepath.Join(base, "pages")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Storage.SQLitePath = filepath.Join(base, "data", "dmmsync.db")
	cfgVal.Matching.Workers = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBatchSize overrides the ingestion batch size.
func WithBatchSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingestion.BatchSize = size
	}
}

// WithQueueSizes sets every pipeline queue capacity to size.
func WithQueueSizes(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingestion.IngestionQueueSize = size
		b.cfg.Ingestion.ParseQueueSize = size
		b.cfg.Ingestion.MatchQueueSize = size
		b.cfg.Ingestion.StoreQueueSize = size
	}
}

// WithMatchingDisabled turns catalog matching off.
func WithMatchingDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Matching.Enabled = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
