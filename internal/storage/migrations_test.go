package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMigrate_ReachesExpectedVersion(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("SchemaVersion() error = %v", err)
	}
	if version != ExpectedSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, ExpectedSchemaVersion)
	}

	if migrations[len(migrations)-1].Version != ExpectedSchemaVersion {
		t.Errorf("last migration is %d, ExpectedSchemaVersion is %d",
			migrations[len(migrations)-1].Version, ExpectedSchemaVersion)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		store, err := NewSQLiteStorage(dbPath)
		if err != nil {
			t.Fatalf("NewSQLiteStorage() error = %v", err)
		}
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
		_ = store.Close()
	}
}

func TestMigrate_RelationshipColumnsAndIndexes(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	columns := map[string]bool{}
	rows, err := store.db.Query(`PRAGMA table_info(transactions)`)
	if err != nil {
		t.Fatalf("table_info error = %v", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cid      int
			name     string
			typ      string
			notNull  int
			defValue any
			pk       int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defValue, &pk); err != nil {
			t.Fatalf("scan error = %v", err)
		}
		columns[name] = true
	}

	for _, col := range []string{
		"link_parent_id", "is_refund", "transaction_group_id", "is_split",
		"split_breakdown", "split_share_amount", "is_deleted", "version",
	} {
		if !columns[col] {
			t.Errorf("transactions is missing column %s", col)
		}
	}

	for _, index := range []string{"idx_transactions_link_parent", "idx_transactions_group"} {
		var count int
		err := store.db.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, index,
		).Scan(&count)
		if err != nil {
			t.Fatalf("index lookup error = %v", err)
		}
		if count != 1 {
			t.Errorf("index %s was not created", index)
		}
	}
}
