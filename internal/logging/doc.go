// Package logging assembles structured slog loggers and formatting helpers used
// across the ingestion pipeline.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code can automatically
// tag log lines with run IDs, stages, and page identifiers. Per-stage level
// overrides let an operator turn on debug output for one stage (for example
// match misses) without flooding the rest. The package also provides a no-op
// logger for tests and wiring code that cannot fail.
package logging
