package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"dmmsync/internal/config"
	"dmmsync/internal/store"
)

func newPagesCommand(ctx *commandContext) *cobra.Command {
	pagesCmd := &cobra.Command{
		Use:   "pages",
		Short: "Inspect and edit the processed-page ledger",
	}
	pagesCmd.AddCommand(newPagesListCommand(ctx))
	pagesCmd.AddCommand(newPagesForgetCommand(ctx))
	return pagesCmd
}

func newPagesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pages already ingested",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				pages, err := st.ListPages(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(pages) == 0 {
					fmt.Fprintln(out, "No pages processed yet")
					return nil
				}
				rows := make([][]string, 0, len(pages))
				for _, page := range pages {
					rows = append(rows, []string{
						page.Page,
						strconv.Itoa(page.EntryCount),
						page.ProcessedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Page", "Entries", "Processed"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
}

func newPagesForgetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <page>...",
		Short: "Remove pages from the ledger so the next sync reads them again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				out := cmd.OutOrStdout()
				for _, arg := range args {
					page := filepath.Base(arg)
					removed, err := st.ForgetPage(cmd.Context(), page)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(out, "Forgot %s\n", page)
					} else {
						fmt.Fprintf(out, "%s is not in the ledger\n", page)
					}
				}
				return nil
			})
		},
	}
}
