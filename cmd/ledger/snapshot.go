package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Manage ledger snapshots",
		Long: `Create, list and restore copies of the ledger database.

Destructive commands take an automatic snapshot first; the newest five
automatic snapshots are kept.`,
		Example: `  # Save the ledger before a cleanup session
  ledger snapshot create before-cleanup -d "before merging duplicates"

  # Roll back
  ledger snapshot restore before-cleanup`,
	}

	cmd.AddCommand(snapshotCreateCmd())
	cmd.AddCommand(snapshotListCmd())
	cmd.AddCommand(snapshotRestoreCmd())
	cmd.AddCommand(snapshotDeleteCmd())

	return cmd
}

func snapshotCreateCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshots, closeStore, err := openSnapshots(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			info, err := snapshots.Create(cmd.Context(), args[0], description)
			if err != nil {
				return fmt.Errorf("failed to create snapshot: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Created snapshot %s (%d transactions, %d refund links, %d groups)",
				info.ID, info.Transactions, info.RefundLinks, info.Groups)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Description of the snapshot")

	return cmd
}

func snapshotListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snapshots, closeStore, err := openSnapshots(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			list, err := snapshots.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}
			return cli.RenderSnapshots(cmd.OutOrStdout(), list)
		},
	}
}

func snapshotRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <name>",
		Short: "Replace the ledger with a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshots, closeStore, err := openSnapshots(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := snapshots.Restore(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to restore snapshot: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Restored ledger from %s", args[0])))
			return nil
		},
	}
}

func snapshotDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshots, closeStore, err := openSnapshots(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := snapshots.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete snapshot: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted snapshot %s", args[0])))
			return nil
		},
	}
}

func openSnapshots(cmd *cobra.Command) (*storage.SnapshotManager, func(), error) {
	store, err := initStorage(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	snapshots, err := store.Snapshots()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return snapshots, func() { _ = store.Close() }, nil
}
