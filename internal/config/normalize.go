package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeIngestion()
	c.normalizeParsing()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.PagesDir) == "" {
		c.Paths.PagesDir = filepath.Join(c.Paths.DataDir, "hashlists")
	}
	if c.Paths.PagesDir, err = expandPath(c.Paths.PagesDir); err != nil {
		return fmt.Errorf("paths.pages_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Storage.SQLitePath) == "" {
		c.Storage.SQLitePath = filepath.Join(c.Paths.DataDir, defaultSQLiteFile)
	}
	if c.Storage.SQLitePath, err = expandPath(c.Storage.SQLitePath); err != nil {
		return fmt.Errorf("storage.sqlite_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.Sink = strings.ToLower(strings.TrimSpace(c.Storage.Sink))
	if c.Storage.Sink == "" {
		c.Storage.Sink = defaultSink
	}
	if value, ok := os.LookupEnv("DMMSYNC_POSTGRES_DSN"); ok && strings.TrimSpace(value) != "" {
		c.Storage.PostgresDSN = value
	}
	c.Storage.PostgresDSN = strings.TrimSpace(c.Storage.PostgresDSN)
	if c.Storage.PostgresMaxConns <= 0 {
		c.Storage.PostgresMaxConns = defaultPostgresMaxConns
	}
}

func (c *Config) normalizeIngestion() {
	c.Ingestion.HashlistHost = strings.TrimSpace(c.Ingestion.HashlistHost)
	c.Ingestion.HashlistHost = strings.TrimPrefix(c.Ingestion.HashlistHost, "https://")
	c.Ingestion.HashlistHost = strings.TrimSuffix(c.Ingestion.HashlistHost, "/")
	if c.Ingestion.HashlistHost == "" {
		c.Ingestion.HashlistHost = defaultHashlistHost
	}
}

func (c *Config) normalizeParsing() {
	c.Parsing.Backend = strings.ToLower(strings.TrimSpace(c.Parsing.Backend))
	if c.Parsing.Backend == "" {
		c.Parsing.Backend = defaultParserBackend
	}
	if value, ok := os.LookupEnv("DMMSYNC_PARSER_ENDPOINT"); ok && strings.TrimSpace(value) != "" {
		c.Parsing.Endpoint = value
	}
	c.Parsing.Endpoint = strings.TrimSuffix(strings.TrimSpace(c.Parsing.Endpoint), "/")
	if c.Parsing.TimeoutSeconds <= 0 {
		c.Parsing.TimeoutSeconds = defaultParserTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if len(c.Logging.StageOverrides) > 0 {
		normalized := make(map[string]string, len(c.Logging.StageOverrides))
		for stage, level := range c.Logging.StageOverrides {
			key := strings.ToLower(strings.TrimSpace(stage))
			if key == "" {
				continue
			}
			normalized[key] = strings.ToLower(strings.TrimSpace(level))
		}
		c.Logging.StageOverrides = normalized
	}
}
