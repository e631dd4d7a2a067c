package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/config"
	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

// initStorage opens the configured ledger and brings its schema up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(config.DatabasePath(viper.GetViper()))
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// newEngine builds the relationship engine from configuration.
func newEngine(store *storage.SQLiteStorage) (*engine.Engine, error) {
	cfg, err := config.LoadEngineConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return engine.NewWithConfig(store, cfg), nil
}

// withEngine opens the ledger, runs fn and closes the ledger again.
func withEngine(ctx context.Context, fn func(*storage.SQLiteStorage, *engine.Engine) error) error {
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	eng, err := newEngine(store)
	if err != nil {
		return err
	}
	return fn(store, eng)
}

// withConflictRetry re-runs a mutation that lost a concurrent-write race.
// Every attempt re-reads its inputs through the engine.
func withConflictRetry(ctx context.Context, operation func() error) error {
	opts, err := config.ConflictRetryOptions(viper.GetViper())
	if err != nil {
		return err
	}
	return explain(common.WithRetry(ctx, operation, opts))
}

// autoSnapshot copies the ledger before a destructive command unless --no-snapshot is set.
func autoSnapshot(cmd *cobra.Command, store *storage.SQLiteStorage, operation string) error {
	if skip, _ := cmd.Flags().GetBool("no-snapshot"); skip {
		return nil
	}

	snapshots, err := store.Snapshots()
	if err != nil {
		return err
	}
	if _, err := snapshots.AutoSnapshot(cmd.Context(), operation); err != nil {
		return fmt.Errorf("failed to snapshot ledger before %s: %w", operation, err)
	}
	return nil
}

func addNoSnapshotFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("no-snapshot", false, "Skip the automatic snapshot taken before this command")
}

// explain attaches a next step to errors the user can act on.
func explain(err error) error {
	if err == nil {
		return nil
	}

	id, _ := common.FailedTransactionID(err)
	switch {
	case errors.Is(err, common.ErrAlreadyLinked), errors.Is(err, common.ErrConflictingRelationship):
		if id != "" {
			return common.NewUserError(fmt.Sprintf("run 'ledger show %s' to see its relationships", id), err)
		}
	case errors.Is(err, common.ErrConflict), errors.Is(err, common.ErrMaxRetries):
		return common.NewUserError("the ledger kept changing underneath this command; try again", err)
	case errors.Is(err, common.ErrRejectedField):
		return common.NewUserError("use link, transfer or split to change relationships", err)
	}
	return err
}

// parseAssignments turns repeated key=value flags into a map.
func parseAssignments(assignments []string) (map[string]string, error) {
	fields := make(map[string]string, len(assignments))
	for _, a := range assignments {
		key, value, ok := strings.Cut(a, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected field=value", a)
		}
		fields[key] = value
	}
	return fields, nil
}
