package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dmmsync/internal/config"
	"dmmsync/internal/store"
)

func newBlacklistCommand(ctx *commandContext) *cobra.Command {
	blacklistCmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Manage info hashes excluded from ingestion",
	}
	blacklistCmd.AddCommand(newBlacklistAddCommand(ctx))
	blacklistCmd.AddCommand(newBlacklistRemoveCommand(ctx))
	blacklistCmd.AddCommand(newBlacklistListCommand(ctx))
	return blacklistCmd
}

func newBlacklistAddCommand(ctx *commandContext) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "add <hash>...",
		Short: "Blacklist one or more info hashes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				for _, hash := range args {
					if err := st.AddBlacklist(cmd.Context(), hash, reason); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Blacklisted %d hash(es)\n", len(args))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the hashes are excluded")
	return cmd
}

func newBlacklistRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <hash>...",
		Short: "Remove info hashes from the blacklist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				out := cmd.OutOrStdout()
				for _, hash := range args {
					removed, err := st.RemoveBlacklist(cmd.Context(), hash)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(out, "Removed %s\n", strings.ToLower(strings.TrimSpace(hash)))
					} else {
						fmt.Fprintf(out, "%s was not blacklisted\n", strings.ToLower(strings.TrimSpace(hash)))
					}
				}
				return nil
			})
		},
	}
}

func newBlacklistListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List blacklisted info hashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				items, err := st.ListBlacklist(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Blacklist is empty")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{item.InfoHash, item.Reason, item.AddedAt.Local().Format("2006-01-02 15:04")})
				}
				fmt.Fprintln(out, renderTable(out, []string{"Hash", "Reason", "Added"}, rows, nil))
				return nil
			})
		},
	}
}
