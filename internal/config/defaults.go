package config

const (
	defaultConfigPath         = "~/.config/dmmsync/config.toml"
	defaultDataDir            = "~/.local/share/dmmsync"
	defaultPagesDir           = "~/.local/share/dmmsync/hashlists"
	defaultLogDir             = "~/.local/share/dmmsync/logs"
	defaultSQLiteFile         = "dmmsync.db"
	defaultSink               = SinkSQLite
	defaultPostgresMaxConns   = 4
	defaultBatchSize          = 5000
	defaultIngestionQueueSize = 10000
	defaultParseQueueSize     = 8
	defaultMatchQueueSize     = 8
	defaultStoreQueueSize     = 8
	defaultHashlistHost       = "debridmediamanager.com"
	defaultParserBackend      = ParserRLS
	defaultParserTimeout      = 60
	defaultParserRPS          = 4
	defaultMatchingTopK       = 10
	defaultMatchingMaxEdits   = 2
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Storage sinks.
const (
	SinkSQLite   = "sqlite"
	SinkPostgres = "postgres"
)

// Parser backends.
const (
	ParserRLS  = "rls"
	ParserHTTP = "http"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			PagesDir: defaultPagesDir,
			LogDir:   defaultLogDir,
		},
		Storage: Storage{
			Sink:             defaultSink,
			PostgresMaxConns: defaultPostgresMaxConns,
		},
		Ingestion: Ingestion{
			BatchSize:          defaultBatchSize,
			IngestionQueueSize: defaultIngestionQueueSize,
			ParseQueueSize:     defaultParseQueueSize,
			MatchQueueSize:     defaultMatchQueueSize,
			StoreQueueSize:     defaultStoreQueueSize,
			HashlistHost:       defaultHashlistHost,
		},
		Parsing: Parsing{
			Backend:           defaultParserBackend,
			RequestsPerSecond: defaultParserRPS,
			TimeoutSeconds:    defaultParserTimeout,
		},
		Matching: Matching{
			Enabled:  true,
			TopK:     defaultMatchingTopK,
			MaxEdits: defaultMatchingMaxEdits,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
