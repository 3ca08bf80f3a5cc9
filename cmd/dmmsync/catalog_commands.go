package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dmmsync/internal/catalog"
	"dmmsync/internal/config"
	"dmmsync/internal/ingest"
	"dmmsync/internal/media"
	"dmmsync/internal/store"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the IMDb catalog snapshot used for matching",
	}
	catalogCmd.AddCommand(newCatalogImportCommand(ctx))
	catalogCmd.AddCommand(newCatalogSearchCommand(ctx))
	catalogCmd.AddCommand(newCatalogRetagCommand(ctx))
	return catalogCmd
}

func newCatalogImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <title.basics.tsv[.gz]>",
		Short: "Import IMDb title.basics into the catalog snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open catalog file: %w", err)
			}
			defer file.Close()

			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				stats, err := st.ImportCatalog(cmd.Context(), file, cfg.Matching.IncludeAdult)
				if err != nil {
					return err
				}
				total, err := st.CatalogCount(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d titles (%d rows read, %d skipped); catalog holds %d titles\n",
					stats.Imported, stats.Rows, stats.Skipped, total)
				return nil
			})
		},
	}
}

type candidateView struct {
	ImdbID   string  `json:"imdb_id"`
	Title    string  `json:"title"`
	Year     int     `json:"year"`
	Distance int     `json:"distance"`
	Score    float64 `json:"score"`
}

func newCatalogSearchCommand(ctx *commandContext) *cobra.Command {
	var year int
	var category string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "search <title>",
		Short: "Show the ranked catalog candidates for a title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.Join(args, " ")
			cat := media.ParseCategory(category)
			if !cat.Matchable() {
				return fmt.Errorf("category must be movie or series, got %q", category)
			}
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				entries, err := st.LoadCatalog(cmd.Context(), cfg.Matching.IncludeAdult)
				if err != nil {
					return err
				}
				index := catalog.NewIndex(entries, catalog.Options{TopK: cfg.Matching.TopK, MaxEdits: cfg.Matching.MaxEdits})
				candidates := index.Query(title, year, cat)

				if jsonOut {
					views := make([]candidateView, 0, len(candidates))
					for _, c := range candidates {
						views = append(views, candidateView{
							ImdbID:   c.Entry.ImdbID,
							Title:    c.Entry.Title,
							Year:     c.Entry.Year,
							Distance: c.Distance,
							Score:    c.Score,
						})
					}
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(candidates) == 0 {
					fmt.Fprintln(out, "No candidates")
					return nil
				}
				rows := make([][]string, 0, len(candidates))
				for _, c := range candidates {
					rows = append(rows, []string{
						c.Entry.ImdbID,
						c.Entry.Title,
						strconv.Itoa(c.Entry.Year),
						strconv.Itoa(c.Distance),
						strconv.FormatFloat(c.Score, 'f', 3, 64),
					})
				}
				fmt.Fprintln(out, renderTable(out,
					[]string{"IMDb", "Title", "Year", "Edits", "Score"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Release year to boost")
	cmd.Flags().StringVar(&category, "category", "movie", "movie or series")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print candidates as JSON")
	return cmd
}

type retagReport struct {
	RunID     string `json:"run_id"`
	Scope     string `json:"scope"`
	Scanned   int    `json:"scanned"`
	Matched   int    `json:"matched"`
	Changed   int    `json:"changed"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

func newCatalogRetagCommand(ctx *commandContext) *cobra.Command {
	var all, jsonOut bool
	cmd := &cobra.Command{
		Use:   "retag",
		Short: "Re-match stored torrents against the current catalog",
		Long: "Re-run catalog matching over torrents already stored, typically after 'dmmsync catalog import'.\n" +
			"By default only torrents without an IMDb id are matched. --all matches every non-adult torrent\n" +
			"from scratch and clears identifiers the catalog no longer supports.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			runner, err := ingest.NewRunner(cfg, logger)
			if err != nil {
				return err
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			result, err := runner.Retag(signalCtx, all)
			if err != nil {
				return err
			}
			report := retagReport{
				RunID:     result.RunID,
				Scope:     "missing",
				Scanned:   result.Scanned,
				Matched:   result.Matched,
				Changed:   result.Changed,
				ElapsedMS: result.Elapsed.Milliseconds(),
			}
			if all {
				report.Scope = "all"
			}
			if jsonOut {
				return writeJSON(cmd, report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Retag (%s): scanned %d, matched %d, changed %d in %s\n",
				report.Scope, report.Scanned, report.Matched, report.Changed, result.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Re-match every torrent, not only those without an IMDb id")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the retag summary as JSON")
	return cmd
}
