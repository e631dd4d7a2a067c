package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/Veraticus/spice-ledger/internal/service"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

func auditCmd() *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check every relationship in the ledger for consistency",
		Long: `Scan the whole ledger for relationships that break the engine's rules:
refunds of deleted purchases, records in two relationships at once,
groups left with a single member, and splits whose parts no longer
add up to the original.

With --fix, dangling refund links are cleared and single-member groups
dissolved. Other findings need a manual decision.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			return withEngine(ctx, func(store *storage.SQLiteStorage, eng *engine.Engine) error {
				report, err := auditLedger(cmd, store, eng)
				if err != nil {
					return err
				}

				if fix && !report.Clean() {
					if err := autoSnapshot(cmd, store, "audit-fix"); err != nil {
						return err
					}

					fixed := 0
					for _, issue := range report.Issues {
						if !issue.Fixable {
							continue
						}
						if err := withConflictRetry(ctx, func() error { return eng.FixIssue(ctx, issue) }); err != nil {
							return fmt.Errorf("failed to fix %s: %w", issue.Type, err)
						}
						fixed++
					}
					fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Fixed %d issue(s)", fixed)))

					if report, err = auditLedger(cmd, store, eng); err != nil {
						return err
					}
				}

				if err := cli.RenderAudit(out, report); err != nil {
					return err
				}
				if !report.Clean() {
					return fmt.Errorf("%d relationship issue(s) found", len(report.Issues))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "Repair issues that have an unambiguous fix")
	addNoSnapshotFlag(cmd)

	return cmd
}

func auditLedger(cmd *cobra.Command, store *storage.SQLiteStorage, eng *engine.Engine) (*engine.AuditReport, error) {
	txns, err := store.ListTransactions(cmd.Context(), service.TransactionFilter{IncludeDeleted: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return eng.AuditLedger(txns), nil
}
