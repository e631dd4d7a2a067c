package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

func linkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <refund-id> <purchase-id>",
		Short: "Link a refund credit to the debit it reverses",
		Example: `  # Mark a store credit as the refund of last week's purchase
  ledger link 7f3c... a91d...`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(_ *storage.SQLiteStorage, eng *engine.Engine) error {
				var linked *model.Transaction
				err := withConflictRetry(ctx, func() error {
					var err error
					linked, err = eng.LinkRefund(ctx, args[0], args[1])
					return err
				})
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Linked %s as a refund of %s", linked.ID, linked.LinkParentID)))
				return printRefundTotal(ctx, cmd, eng, linked.LinkParentID)
			})
		},
	}
}

func unlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <refund-id>",
		Short: "Remove a refund link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(_ *storage.SQLiteStorage, eng *engine.Engine) error {
				var unlinked *model.Transaction
				err := withConflictRetry(ctx, func() error {
					var err error
					unlinked, err = eng.UnlinkRefund(ctx, args[0])
					return err
				})
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s is no longer linked", unlinked.ID)))
				return nil
			})
		},
	}
}

// printRefundTotal shows how much of a purchase has been refunded so far.
func printRefundTotal(ctx context.Context, cmd *cobra.Command, eng *engine.Engine, parentID string) error {
	children, err := eng.RefundChildren(ctx, parentID)
	if err != nil {
		return err
	}

	var refunded float64
	for _, c := range children {
		refunded += c.Amount
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("%d refund(s) totaling %.2f", len(children), refunded)))
	return nil
}
