package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateIngestion(); err != nil {
		return err
	}
	if err := c.validateParsing(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStorage() error {
	switch c.Storage.Sink {
	case SinkSQLite:
	case SinkPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required when storage.sink is postgres (or set DMMSYNC_POSTGRES_DSN)")
		}
	default:
		return fmt.Errorf("storage.sink: unsupported value %q (want %s or %s)", c.Storage.Sink, SinkSQLite, SinkPostgres)
	}
	return nil
}

func (c *Config) validateIngestion() error {
	if c.Ingestion.BatchSize <= 0 {
		return errors.New("ingestion.batch_size must be positive")
	}
	sizes := []struct {
		name  string
		value int
	}{
		{"ingestion.ingestion_queue_size", c.Ingestion.IngestionQueueSize},
		{"ingestion.parse_queue_size", c.Ingestion.ParseQueueSize},
		{"ingestion.match_queue_size", c.Ingestion.MatchQueueSize},
		{"ingestion.store_queue_size", c.Ingestion.StoreQueueSize},
	}
	for _, size := range sizes {
		if size.value <= 0 {
			return fmt.Errorf("%s must be positive", size.name)
		}
	}
	return nil
}

func (c *Config) validateParsing() error {
	switch c.Parsing.Backend {
	case ParserRLS:
	case ParserHTTP:
		if c.Parsing.Endpoint == "" {
			return errors.New("parsing.endpoint is required when parsing.backend is http (or set DMMSYNC_PARSER_ENDPOINT)")
		}
		if c.Parsing.RequestsPerSecond < 0 {
			return errors.New("parsing.requests_per_second must not be negative")
		}
	default:
		return fmt.Errorf("parsing.backend: unsupported value %q (want %s or %s)", c.Parsing.Backend, ParserRLS, ParserHTTP)
	}
	return nil
}

func (c *Config) validateMatching() error {
	if c.Matching.TopK <= 0 {
		return errors.New("matching.top_k must be positive")
	}
	if c.Matching.MaxEdits < 0 || c.Matching.MaxEdits > 2 {
		return errors.New("matching.max_edits must be between 0 and 2")
	}
	if c.Matching.Workers < 0 {
		return errors.New("matching.workers must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	for stage, level := range c.Logging.StageOverrides {
		if !validLevel(level) {
			return fmt.Errorf("logging.stage_overrides.%s: unsupported level %q", stage, level)
		}
	}
	if !validLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
