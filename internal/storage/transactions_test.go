package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

func seedStorage(t *testing.T, count int) (*SQLiteStorage, []model.Transaction) {
	t.Helper()
	store, cleanup := createTestStorage(t)
	t.Cleanup(cleanup)

	if err := store.SaveTransactions(context.Background(), createTestTransactions(count)); err != nil {
		t.Fatalf("SaveTransactions() error = %v", err)
	}

	stored, err := store.GetTransactions(context.Background(), ids(createTestTransactions(count)))
	if err != nil {
		t.Fatalf("GetTransactions() error = %v", err)
	}
	return store, stored
}

func TestSQLiteStorage_ApplyBatchUpdates(t *testing.T) {
	store, txns := seedStorage(t, 2)
	ctx := context.Background()

	fixed := time.Date(2024, 7, 4, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return fixed })

	child := txns[1].Clone()
	child.LinkParentID = txns[0].ID
	child.IsRefund = true

	result, err := store.ApplyBatch(ctx, service.Batch{Updates: []model.Transaction{child}})
	require.NoError(t, err)
	require.Len(t, result.Updated, 1)
	assert.Equal(t, int64(2), result.Updated[0].Version)
	assert.True(t, result.Updated[0].UpdatedAt.Equal(fixed))

	stored := mustGet(t, store, child.ID)
	assert.Equal(t, txns[0].ID, stored.LinkParentID)
	assert.True(t, stored.IsRefund)
	assert.Equal(t, int64(2), stored.Version)

	children, err := store.GetRefundChildren(ctx, txns[0].ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)
}

func TestSQLiteStorage_ApplyBatchStaleVersion(t *testing.T) {
	store, txns := seedStorage(t, 2)
	ctx := context.Background()

	first := txns[0].Clone()
	first.Notes = "first writer"
	_, err := store.ApplyBatch(ctx, service.Batch{Updates: []model.Transaction{first}})
	require.NoError(t, err)

	// A second writer still holding version 1 must lose.
	stale := txns[0].Clone()
	stale.Notes = "second writer"
	_, err = store.ApplyBatch(ctx, service.Batch{Updates: []model.Transaction{stale}})
	require.Error(t, err)
	assert.True(t, common.IsConflict(err))
	id, ok := common.FailedTransactionID(err)
	assert.True(t, ok)
	assert.Equal(t, txns[0].ID, id)

	assert.Equal(t, "first writer", mustGet(t, store, txns[0].ID).Notes)
}

func TestSQLiteStorage_ApplyBatchGuards(t *testing.T) {
	store, txns := seedStorage(t, 3)
	ctx := context.Background()

	child := txns[1].Clone()
	child.LinkParentID = txns[0].ID
	child.IsRefund = true
	_, err := store.ApplyBatch(ctx, service.Batch{Updates: []model.Transaction{child}})
	require.NoError(t, err)

	t.Run("refund pointing at a guarded id", func(t *testing.T) {
		grouped := txns[0].Clone()
		grouped.GroupID = "g1"
		_, err := store.ApplyBatch(ctx, service.Batch{
			Updates:          []model.Transaction{grouped},
			RequireNoRefunds: []string{txns[0].ID},
		})
		assert.True(t, common.IsConflict(err))
		id, _ := common.FailedTransactionID(err)
		assert.Equal(t, txns[0].ID, id)
		assert.Empty(t, mustGet(t, store, txns[0].ID).GroupID)
	})

	t.Run("guarded record changed since read", func(t *testing.T) {
		bumped := txns[2].Clone()
		bumped.Notes = "bumped"
		_, err := store.ApplyBatch(ctx, service.Batch{Updates: []model.Transaction{bumped}})
		require.NoError(t, err)

		note := mustGet(t, store, txns[1].ID)
		note.Notes = "depends on txn-3"
		_, err = store.ApplyBatch(ctx, service.Batch{
			Updates:          []model.Transaction{note},
			RequireUnchanged: []model.Transaction{txns[2]},
		})
		assert.True(t, common.IsConflict(err))
		assert.Empty(t, mustGet(t, store, txns[1].ID).Notes)
	})

	t.Run("guarded record deleted", func(t *testing.T) {
		require.NoError(t, store.SoftDeleteTransaction(ctx, txns[2].ID))

		note := mustGet(t, store, txns[1].ID)
		note.Notes = "depends on txn-3"
		_, err := store.ApplyBatch(ctx, service.Batch{
			Updates:          []model.Transaction{note},
			RequireUnchanged: []model.Transaction{mustGet(t, store, txns[2].ID)},
		})
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("guards that hold", func(t *testing.T) {
		note := mustGet(t, store, txns[1].ID)
		note.Notes = "parent still free"
		_, err := store.ApplyBatch(ctx, service.Batch{
			Updates:          []model.Transaction{note},
			RequireUnchanged: []model.Transaction{mustGet(t, store, txns[0].ID)},
			RequireNoRefunds: []string{txns[1].ID},
		})
		require.NoError(t, err)
		assert.Equal(t, "parent still free", mustGet(t, store, txns[1].ID).Notes)
	})
}

func TestSQLiteStorage_ApplyBatchIsAtomic(t *testing.T) {
	store, txns := seedStorage(t, 3)
	ctx := context.Background()

	// Bump txn-3 so the batch below holds a stale copy of it.
	bumped := txns[2].Clone()
	bumped.Notes = "bumped"
	_, err := store.ApplyBatch(ctx, service.Batch{Updates: []model.Transaction{bumped}})
	require.NoError(t, err)

	a := txns[0].Clone()
	a.GroupID = "g1"
	b := txns[1].Clone()
	b.GroupID = "g1"
	staleC := txns[2].Clone()
	staleC.GroupID = "g1"

	_, err = store.ApplyBatch(ctx, service.Batch{
		Categories: []string{"Transfers"},
		Tags:       []string{"moved"},
		Inserts: []model.Transaction{{
			ID: "new-1", Date: testDate, AccountID: "acc1", Direction: model.DirectionDebit, Amount: 1,
		}},
		Updates: []model.Transaction{a, b, staleC},
	})
	require.ErrorIs(t, err, common.ErrConflict)

	// Nothing from the failed batch is visible.
	members, err := store.GetGroupMembers(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = store.GetTransaction(ctx, "new-1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	cat, err := store.GetCategoryByName(ctx, "Transfers")
	require.NoError(t, err)
	assert.Nil(t, cat)

	tags, err := store.GetTags(ctx)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestSQLiteStorage_ApplyBatchDeletes(t *testing.T) {
	store, txns := seedStorage(t, 2)
	ctx := context.Background()

	result, err := store.ApplyBatch(ctx, service.Batch{Deletes: []model.Transaction{txns[0]}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	_, err = store.GetTransaction(ctx, txns[0].ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	// Deleting again reports the row as gone, not as a conflict.
	_, err = store.ApplyBatch(ctx, service.Batch{Deletes: []model.Transaction{txns[0]}})
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.False(t, common.IsConflict(err))
}

func TestSQLiteStorage_ApplyBatchSoftDeletedRecord(t *testing.T) {
	store, txns := seedStorage(t, 1)
	ctx := context.Background()

	require.NoError(t, store.SoftDeleteTransaction(ctx, txns[0].ID))

	update := mustGet(t, store, txns[0].ID)
	update.IsDeleted = false
	update.Notes = "resurrect"
	_, err := store.ApplyBatch(ctx, service.Batch{Updates: []model.Transaction{update}})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStorage_ApplyBatchInserts(t *testing.T) {
	store, txns := seedStorage(t, 1)
	ctx := context.Background()

	share := 25.0
	part := model.Transaction{
		ID:        "part-1",
		Date:      testDate,
		AccountID: "acc1",
		Direction: model.DirectionDebit,
		Amount:    50,
		GroupID:   "s1",
		IsSplit:   true,
		SplitBreakdown: &model.SplitBreakdown{
			Mode:         model.SplitModeEqual,
			Participants: []string{"sam"},
			IncludeOwner: true,
		},
		SplitShareAmount: &share,
	}

	result, err := store.ApplyBatch(ctx, service.Batch{
		Categories: []string{"Home", " Home "},
		Tags:       []string{"shared"},
		Inserts:    []model.Transaction{part},
	})
	require.NoError(t, err)
	require.Len(t, result.Inserted, 1)
	assert.Equal(t, int64(1), result.Inserted[0].Version)

	stored := mustGet(t, store, "part-1")
	assert.True(t, stored.IsSplit)
	require.NotNil(t, stored.SplitBreakdown)
	assert.Equal(t, []string{"sam"}, stored.SplitBreakdown.Participants)
	require.NotNil(t, stored.SplitShareAmount)
	assert.InDelta(t, 25, *stored.SplitShareAmount, 0.001)

	categories, err := store.GetCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Home", categories[0].Name)

	t.Run("duplicate id conflicts", func(t *testing.T) {
		dup := part
		dup.ID = txns[0].ID
		_, err := store.ApplyBatch(ctx, service.Batch{Inserts: []model.Transaction{dup}})
		assert.ErrorIs(t, err, common.ErrConflict)
	})
}

func TestSQLiteStorage_ApplyBatchRejectsMalformedBatches(t *testing.T) {
	store, txns := seedStorage(t, 1)
	ctx := context.Background()

	tests := []struct {
		name  string
		batch service.Batch
	}{
		{
			name:  "same id twice",
			batch: service.Batch{Updates: []model.Transaction{txns[0], txns[0]}},
		},
		{
			name:  "update and delete same id",
			batch: service.Batch{Updates: []model.Transaction{txns[0]}, Deletes: []model.Transaction{txns[0]}},
		},
		{
			name:  "delete without id",
			batch: service.Batch{Deletes: []model.Transaction{{}}},
		},
		{
			name:  "insert without account",
			batch: service.Batch{Inserts: []model.Transaction{{ID: "x", Date: testDate, Direction: model.DirectionDebit}}},
		},
		{
			name:  "refund guard without id",
			batch: service.Batch{Updates: []model.Transaction{txns[0]}, RequireNoRefunds: []string{""}},
		},
		{
			name:  "version guard without id",
			batch: service.Batch{Updates: []model.Transaction{txns[0]}, RequireUnchanged: []model.Transaction{{}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.ApplyBatch(ctx, tt.batch)
			if err == nil {
				t.Fatal("ApplyBatch() expected error")
			}
			if !errors.Is(err, ErrInvalidBatch) && !errors.Is(err, ErrInvalidTransaction) {
				t.Errorf("ApplyBatch() error = %v, want invalid batch", err)
			}
		})
	}

	assert.Equal(t, int64(1), mustGet(t, store, txns[0].ID).Version)
}

func TestSQLiteStorage_GetGroupMembersOrdersAnchorFirst(t *testing.T) {
	store, txns := seedStorage(t, 1)
	ctx := context.Background()

	anchor := txns[0].Clone()
	anchor.GroupID = "s1"
	parts := []model.Transaction{
		{ID: "a-part", Date: testDate, AccountID: "acc1", Direction: model.DirectionDebit, Amount: 5, GroupID: "s1", IsSplit: true},
		{ID: "b-part", Date: testDate, AccountID: "acc1", Direction: model.DirectionDebit, Amount: 5.5, GroupID: "s1", IsSplit: true},
	}

	_, err := store.ApplyBatch(ctx, service.Batch{Inserts: parts, Updates: []model.Transaction{anchor}})
	require.NoError(t, err)

	members, err := store.GetGroupMembers(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{txns[0].ID, "a-part", "b-part"}, ids(members))
}

func TestSQLiteStorage_ExistingHashes(t *testing.T) {
	store, txns := seedStorage(t, 3)
	ctx := context.Background()

	existing, err := store.ExistingHashes(ctx, []string{txns[0].Hash, "unknown", txns[2].Hash})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{txns[0].Hash: true, txns[2].Hash: true}, existing)

	empty, err := store.ExistingHashes(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
