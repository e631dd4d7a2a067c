package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a transaction and its relationships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(_ *storage.SQLiteStorage, eng *engine.Engine) error {
				rel, err := eng.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				return cli.RenderRelationships(cmd.OutOrStdout(), rel)
			})
		},
	}
}

func listCmd() *cobra.Command {
	var (
		from, to       string
		account        string
		limit, offset  int
		includeDeleted bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := service.TransactionFilter{
				AccountID:      account,
				Limit:          limit,
				Offset:         offset,
				IncludeDeleted: includeDeleted,
			}
			if from != "" {
				start, err := time.Parse("2006-01-02", from)
				if err != nil {
					return fmt.Errorf("invalid --from date: %w", err)
				}
				filter.StartDate = &start
			}
			if to != "" {
				end, err := time.Parse("2006-01-02", to)
				if err != nil {
					return fmt.Errorf("invalid --to date: %w", err)
				}
				// Inclusive of the whole day.
				end = end.Add(24*time.Hour - time.Nanosecond)
				filter.EndDate = &end
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			txns, err := store.ListTransactions(ctx, filter)
			if err != nil {
				return err
			}
			return cli.RenderTransactions(cmd.OutOrStdout(), txns)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Earliest date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Latest date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&account, "account", "", "Only this account")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	cmd.Flags().BoolVar(&includeDeleted, "include-deleted", false, "Include deleted transactions")

	return cmd
}
