package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-ledger/internal/cli"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/ofx"
)

const importChunkSize = 100

func importOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-ofx <file> [file...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import transactions from OFX or QFX files exported from your bank.

Negative amounts become debits and positive amounts credits. Transactions
already in the ledger (same date, amount, direction, description and
account) are skipped.`,
		Example: `  # Import every statement in a directory
  ledger import-ofx ~/Downloads/*.qfx`,
		Args: cobra.MinimumNArgs(1),
		RunE: runImportOFX,
	}

	cmd.Flags().BoolP("dry-run", "n", false, "Preview import without saving")

	return cmd
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	files, err := expandFiles(args)
	if err != nil {
		return err
	}

	parser := ofx.NewParser()
	seen := make(map[string]bool)
	var parsed []model.Transaction

	for _, path := range files {
		txns, err := parseOFXFile(ctx, parser, path)
		if err != nil {
			return err
		}
		for _, txn := range txns {
			if seen[txn.Hash] {
				continue
			}
			seen[txn.Hash] = true
			parsed = append(parsed, txn)
		}
		slog.Info("Parsed statement", "file", path, "transactions", len(txns))
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	hashes := make([]string, len(parsed))
	for i, txn := range parsed {
		hashes[i] = txn.Hash
	}
	existing, err := store.ExistingHashes(ctx, hashes)
	if err != nil {
		return err
	}

	fresh := make([]model.Transaction, 0, len(parsed))
	for _, txn := range parsed {
		if !existing[txn.Hash] {
			fresh = append(fresh, txn)
		}
	}

	if dryRun {
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Would import %d new transaction(s), %d already present", len(fresh), len(parsed)-len(fresh))))
		return cli.RenderTransactions(out, fresh)
	}

	if len(fresh) > 0 {
		bar := newImportProgressBar(cmd.ErrOrStderr(), len(fresh))
		for start := 0; start < len(fresh); start += importChunkSize {
			end := min(start+importChunkSize, len(fresh))
			if err := store.SaveTransactions(ctx, fresh[start:end]); err != nil {
				return fmt.Errorf("failed to save transactions: %w", err)
			}
			if err := bar.Add(end - start); err != nil {
				slog.Warn("Failed to update progress bar", "error", err)
			}
		}
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d transaction(s), skipped %d duplicate(s)", len(fresh), len(parsed)-len(fresh))))
	return nil
}

func parseOFXFile(ctx context.Context, parser *ofx.Parser, path string) ([]model.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	txns, err := parser.ParseFile(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return txns, nil
}

// expandFiles resolves glob patterns the shell left unexpanded.
func expandFiles(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(pattern); err != nil {
				slog.Warn("No files found matching pattern", "pattern", pattern)
				continue
			}
			matches = []string{pattern}
		}
		files = append(files, matches...)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files found to import")
	}
	return files, nil
}

func newImportProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Saving transactions...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
}
