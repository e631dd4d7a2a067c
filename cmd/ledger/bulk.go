package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

func bulkCmd() *cobra.Command {
	var assignments []string

	cmd := &cobra.Command{
		Use:   "bulk <id> [id...]",
		Short: "Assign fields on many transactions at once",
		Long: `Assign the same field values to every listed transaction, all or nothing.

Accepted fields: ` + bulkFieldList() + `.
Relationship fields cannot be set here; use link, transfer or split.`,
		Example: `  # Recategorize and tag three transactions
  ledger bulk a1 b2 c3 --set category=Travel --set add_tags=trip-2024

  # Share a dinner equally with two friends
  ledger bulk d4 --set 'split_breakdown={"mode":"equal","participants":["ana","raj"],"include_owner":true}'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseAssignments(assignments)
			if err != nil {
				return err
			}
			update, err := engine.ParseBulkUpdate(fields)
			if err != nil {
				return explain(err)
			}

			ctx := cmd.Context()
			return withEngine(ctx, func(store *storage.SQLiteStorage, eng *engine.Engine) error {
				if err := autoSnapshot(cmd, store, "bulk"); err != nil {
					return err
				}

				var updated []model.Transaction
				err := withConflictRetry(ctx, func() error {
					var err error
					updated, err = eng.BulkUpdate(ctx, args, update)
					return err
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Updated %d transaction(s)", len(updated))))
				return cli.RenderTransactions(out, updated)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&assignments, "set", "s", nil, "Field assignment as field=value (repeatable)")
	_ = cmd.MarkFlagRequired("set")
	addNoSnapshotFlag(cmd)

	return cmd
}

func bulkFieldList() string {
	names := make([]string, len(model.BulkFields))
	for i, f := range model.BulkFields {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
