// Package testutil provides ledger fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

// TestDB represents a migrated test ledger backed by a temporary SQLite file.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a migrated ledger in the test's temp directory.
// It automatically handles cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	db.Seed(testutil.Debit("d1", 100), testutil.Credit("c1", 30))
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// Seed saves base transactions and returns them as stored.
func (db *TestDB) Seed(txns ...model.Transaction) []model.Transaction {
	db.t.Helper()

	if err := db.Storage.SaveTransactions(context.Background(), txns); err != nil {
		db.t.Fatalf("failed to seed transactions: %v", err)
	}

	stored := make([]model.Transaction, len(txns))
	for i, txn := range txns {
		stored[i] = db.MustGet(txn.ID)
	}
	return stored
}

// MustGet returns the stored transaction with id or fails the test.
func (db *TestDB) MustGet(id string) model.Transaction {
	db.t.Helper()

	txn, err := db.Storage.GetTransaction(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to load transaction %s: %v", id, err)
	}
	return *txn
}

// Exists reports whether a row with id is stored, deleted or not.
func (db *TestDB) Exists(id string) bool {
	db.t.Helper()

	txn, err := db.Storage.GetTransaction(context.Background(), id)
	return err == nil && txn != nil
}
