package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"dmmsync/internal/config"
	"dmmsync/internal/hashlist"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create, inspect and check the dmmsync configuration",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigCheckCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the sample configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := initTarget(targetPath)
			if err != nil {
				return err
			}
			if _, err := os.Stat(target); err == nil && !overwrite {
				return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("check config path: %w", err)
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Next: point paths.pages_dir at your hashlist pages, then run 'dmmsync catalog import <title.basics.tsv.gz>'.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func initTarget(flagValue string) (string, error) {
	if strings.TrimSpace(flagValue) == "" {
		return config.DefaultConfigPath()
	}
	return config.ExpandPath(strings.TrimSpace(flagValue))
}

// configCheck is one row of 'config check'. Problems are reported per row so
// a single run lists everything that needs fixing before a sync.
type configCheck struct {
	Setting string `json:"setting"`
	Value   string `json:"value"`
	Status  string `json:"status"`
	OK      bool   `json:"ok"`
}

func newConfigCheckCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:         "check",
		Aliases:     []string{"validate"},
		Short:       "Check the configuration and the directories it names",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}
			checks := checkConfig(cfg)
			failed := 0
			for _, c := range checks {
				if !c.OK {
					failed++
				}
			}
			if asJSON {
				if err := writeJSON(cmd, checks); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				source := path
				if !exists {
					source += " (not found; defaults in use)"
				}
				fmt.Fprintf(out, "Config: %s\n", source)
				rows := make([][]string, 0, len(checks))
				for _, c := range checks {
					rows = append(rows, []string{c.Setting, c.Value, c.Status})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Setting", "Value", "Status"}, rows, nil))
				if failed == 0 {
					fmt.Fprintln(out, "Configuration valid")
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d configuration check(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print checks as JSON")
	return cmd
}

func checkConfig(cfg *config.Config) []configCheck {
	var checks []configCheck
	add := func(setting, value, status string, ok bool) {
		checks = append(checks, configCheck{Setting: setting, Value: value, Status: status, OK: ok})
	}

	if pages, err := hashlist.DiscoverPages(cfg.Paths.PagesDir); err != nil {
		add("paths.pages_dir", cfg.Paths.PagesDir, err.Error(), false)
	} else {
		add("paths.pages_dir", cfg.Paths.PagesDir, fmt.Sprintf("%d page(s) found", len(pages)), true)
	}
	add("storage.sqlite_path", cfg.Storage.SQLitePath, "ok", true)

	switch cfg.Storage.Sink {
	case config.SinkPostgres:
		dsn, err := redactDSN(cfg.Storage.PostgresDSN)
		if err != nil {
			add("storage.postgres_dsn", "", err.Error(), false)
		} else {
			add("storage.postgres_dsn", dsn, "max "+strconv.Itoa(cfg.Storage.PostgresMaxConns)+" connection(s)", true)
		}
	default:
		add("storage.sink", cfg.Storage.Sink, "torrents stored in the sqlite database", true)
	}

	if cfg.Parsing.Backend == config.ParserHTTP {
		add("parsing.endpoint", cfg.Parsing.Endpoint,
			fmt.Sprintf("%g req/s, %ds timeout", cfg.Parsing.RequestsPerSecond, cfg.Parsing.TimeoutSeconds), true)
	} else {
		add("parsing.backend", cfg.Parsing.Backend, "in-process", true)
	}

	if cfg.Matching.Enabled {
		add("matching", "enabled", fmt.Sprintf("top_k=%d max_edits=%d", cfg.Matching.TopK, cfg.Matching.MaxEdits), true)
	} else {
		add("matching", "disabled", "torrents stored without imdb ids", true)
	}
	add("ingestion.batch_size", strconv.Itoa(cfg.Ingestion.BatchSize), "ok", true)
	add("logging", cfg.Logging.Level+"/"+cfg.Logging.Format, cfg.Paths.LogDir, true)
	return checks
}

// redactDSN hides the password of a postgres URL. Key/value DSNs are shown
// by host only.
func redactDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", errors.New("storage.postgres_dsn is required for the postgres sink")
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		for _, part := range strings.Fields(dsn) {
			if strings.HasPrefix(part, "host=") {
				return part, nil
			}
		}
		return "(key/value dsn)", nil
	}
	return u.Redacted(), nil
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Long:  "Print the configuration after defaults, environment overrides and path expansion. The postgres password is redacted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			effective := *cfg
			if effective.Storage.PostgresDSN != "" {
				if redacted, err := redactDSN(effective.Storage.PostgresDSN); err == nil {
					effective.Storage.PostgresDSN = redacted
				}
			}
			encoded, err := toml.Marshal(effective)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(encoded)
			return err
		},
	}
}
