package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

func transferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Group the legs of a transfer between accounts",
		Example: `  # Group the checking debit and savings credit of one transfer
  ledger transfer group 1a2b... 3c4d...

  # Add a fee to an existing transfer
  ledger transfer add <group-id> 5e6f...`,
	}

	cmd.AddCommand(transferGroupCmd())
	cmd.AddCommand(transferAddCmd())
	cmd.AddCommand(transferRemoveCmd())
	cmd.AddCommand(transferUngroupCmd())

	return cmd
}

func transferGroupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "group <id> <id> [id...]",
		Short: "Create a transfer group",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(_ *storage.SQLiteStorage, eng *engine.Engine) error {
				var result *engine.TransferResult
				err := withConflictRetry(ctx, func() error {
					var err error
					result, err = eng.GroupTransfer(ctx, args)
					return err
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Created transfer group %s", result.GroupID)))
				return printTransfer(out, result)
			})
		},
	}
}

func transferAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <group-id> <id> [id...]",
		Short: "Add transactions to a transfer group",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(_ *storage.SQLiteStorage, eng *engine.Engine) error {
				var result *engine.TransferResult
				err := withConflictRetry(ctx, func() error {
					var err error
					result, err = eng.AddToTransferGroup(ctx, args[1:], args[0])
					return err
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Added %d transaction(s) to %s", len(result.Transactions), result.GroupID)))
				return printTransfer(out, result)
			})
		},
	}
}

func transferRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a transaction from its transfer group",
		Long: `Remove a transaction from its transfer group. A group left with a
single member is dissolved and that member is released too.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(_ *storage.SQLiteStorage, eng *engine.Engine) error {
				var result *engine.RemovalResult
				err := withConflictRetry(ctx, func() error {
					var err error
					result, err = eng.RemoveFromTransferGroup(ctx, args[0])
					return err
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if result.GroupID == "" {
					fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%s is not in a transfer group", result.Transaction.ID)))
					return nil
				}
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Removed %s from %s", result.Transaction.ID, result.GroupID)))
				if result.Dissolved {
					fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Group %s dissolved; released %d transaction(s)", result.GroupID, len(result.Released))))
				}
				return nil
			})
		},
	}
}

func transferUngroupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ungroup <group-id>",
		Short: "Dissolve a transfer group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withEngine(ctx, func(_ *storage.SQLiteStorage, eng *engine.Engine) error {
				var released []model.Transaction
				err := withConflictRetry(ctx, func() error {
					var err error
					released, err = eng.UngroupTransfer(ctx, args[0])
					return err
				})
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Dissolved %s; released %d transaction(s)", args[0], len(released))))
				return nil
			})
		},
	}
}

func printTransfer(out io.Writer, result *engine.TransferResult) error {
	if err := cli.RenderTransactions(out, result.Members); err != nil {
		return err
	}
	if advisory := cli.FormatAdvisory(result.Advisory); advisory != "" {
		fmt.Fprintln(out, advisory)
	}
	return nil
}
