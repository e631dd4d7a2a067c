package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

func splitCmd() *cobra.Command {
	var (
		partFlags      []string
		deleteOriginal bool
	)

	cmd := &cobra.Command{
		Use:   "split <id>",
		Short: "Split a transaction into categorized parts",
		Long: `Split a transaction into parts whose amounts add up to the original.

Each --part is amount:category[/subcategory][:description]. Parts inherit
the original's date, account and direction. The original stays behind as
the restorable anchor unless --delete-original is given.`,
		Example: `  # Split a warehouse-store receipt between groceries and household
  ledger split 9b8a... --part 62.10:Groceries --part 37.90:Household/Cleaning:"Detergent"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parts, err := parseParts(partFlags)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return withEngine(ctx, func(_ *storage.SQLiteStorage, eng *engine.Engine) error {
				var result *engine.SplitResult
				err := withConflictRetry(ctx, func() error {
					var err error
					result, err = eng.Split(ctx, args[0], parts, deleteOriginal)
					return err
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Split %s into %d parts (group %s)", args[0], len(result.Created), result.GroupID)))
				if result.Original == nil {
					fmt.Fprintln(out, cli.FormatInfo("The original was deleted; ungrouping this split will delete the parts"))
				}
				return cli.RenderTransactions(out, result.Created)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&partFlags, "part", "p", nil, "Part as amount:category[/subcategory][:description] (repeatable)")
	cmd.Flags().BoolVar(&deleteOriginal, "delete-original", false, "Delete the original instead of keeping it as the anchor")
	_ = cmd.MarkFlagRequired("part")

	cmd.AddCommand(splitUngroupCmd())

	return cmd
}

func splitUngroupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ungroup <group-id>",
		Short: "Undo a split, restoring the original",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(store *storage.SQLiteStorage, eng *engine.Engine) error {
				if err := autoSnapshot(cmd, store, "split-ungroup"); err != nil {
					return err
				}

				var result *engine.UngroupSplitResult
				err := withConflictRetry(ctx, func() error {
					var err error
					result, err = eng.UngroupSplit(ctx, args[0])
					return err
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				switch result.Outcome {
				case engine.UngroupRestored:
					fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Restored %s and deleted %d part(s)", result.Restored.ID, result.DeletedCount)))
				case engine.UngroupDeleted:
					fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("No original to restore; deleted %d part(s)", result.DeletedCount)))
				}
				return nil
			})
		},
	}
	addNoSnapshotFlag(cmd)
	return cmd
}

// parseParts parses --part flags of the form amount:category[/subcategory][:description].
func parseParts(flags []string) ([]model.SplitPart, error) {
	parts := make([]model.SplitPart, 0, len(flags))
	for _, flag := range flags {
		fields := strings.SplitN(flag, ":", 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("invalid part %q, expected amount:category[:description]", flag)
		}

		amount, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid part amount %q: %w", fields[0], err)
		}

		part := model.SplitPart{Amount: amount}
		category, subcategory, _ := strings.Cut(fields[1], "/")
		part.Category = strings.TrimSpace(category)
		part.Subcategory = strings.TrimSpace(subcategory)
		if len(fields) == 3 {
			part.Description = strings.TrimSpace(fields[2])
		}
		parts = append(parts, part)
	}
	return parts, nil
}
