package main

import (
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dmmsync/internal/ingest"
)

type syncReport struct {
	RunID       string `json:"run_id"`
	Pages       int    `json:"pages"`
	PagesSkip   int    `json:"pages_skipped"`
	PageMisses  int    `json:"page_misses"`
	PageFailed  int    `json:"page_failures"`
	Discovered  int    `json:"discovered"`
	Invalid     int    `json:"invalid"`
	Duplicates  int    `json:"duplicates"`
	Blacklisted int    `json:"blacklisted"`
	Parsed      int    `json:"parsed"`
	Unparsed    int    `json:"unparsed"`
	Matched     int    `json:"matched"`
	Stored      int    `json:"stored"`
	Failed      int    `json:"failed"`
	Batches     int    `json:"batches"`
	ElapsedMS   int64  `json:"elapsed_ms"`
	Balanced    bool   `json:"balanced"`
}

func newSyncReport(result ingest.Result) syncReport {
	s := result.Summary
	return syncReport{
		RunID:       result.RunID,
		Pages:       result.Pages.Pages,
		PagesSkip:   result.Pages.Skipped,
		PageMisses:  result.Pages.Misses,
		PageFailed:  result.Pages.Failures,
		Discovered:  s.Discovered,
		Invalid:     s.Invalid,
		Duplicates:  s.Duplicates,
		Blacklisted: s.Blacklisted,
		Parsed:      s.Parsed,
		Unparsed:    s.Unparsed,
		Matched:     s.Matched,
		Stored:      s.Stored,
		Failed:      s.Failed,
		Batches:     s.Batches,
		ElapsedMS:   s.Elapsed.Milliseconds(),
		Balanced:    s.Balanced(),
	}
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ingest every unprocessed hashlist page",
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

			result, runErr := runner.Run(signalCtx)
			if errors.Is(runErr, ingest.ErrLocked) {
				return runErr
			}
			if result.RunID == "" {
				return runErr
			}

			report := newSyncReport(result)
			if jsonOut {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
				return runErr
			}
			out := cmd.OutOrStdout()
			rows := [][]string{
				{"Pages read", strconv.Itoa(report.Pages)},
				{"Pages skipped", strconv.Itoa(report.PagesSkip)},
				{"Discovered", strconv.Itoa(report.Discovered)},
				{"Invalid", strconv.Itoa(report.Invalid)},
				{"Duplicates", strconv.Itoa(report.Duplicates)},
				{"Blacklisted", strconv.Itoa(report.Blacklisted)},
				{"Unparsed", strconv.Itoa(report.Unparsed)},
				{"Matched", strconv.Itoa(report.Matched)},
				{"Stored", strconv.Itoa(report.Stored)},
				{"Failed", strconv.Itoa(report.Failed)},
				{"Balanced", yesNo(report.Balanced)},
			}
			fmt.Fprintln(out, renderTable(out, []string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			fmt.Fprintf(out, "Run %s finished in %s\n", report.RunID, result.Summary.Elapsed.Round(time.Millisecond))
			return runErr
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the run summary as JSON")
	return cmd
}
