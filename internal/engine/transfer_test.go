package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/testutil"
)

func transferFixtures() []model.Transaction {
	return []model.Transaction{
		testutil.Debit("out", 500, testutil.WithAccount("checking"), testutil.WithDescription("Transfer to savings")),
		testutil.Credit("in", 485, testutil.WithAccount("savings"), testutil.WithDescription("Transfer from checking")),
		testutil.Credit("fee-refund", 15, testutil.WithAccount("savings")),
		testutil.Credit("extra", 20, testutil.WithAccount("brokerage")),
	}
}

func TestEngine_GroupTransfer(t *testing.T) {
	ctx := context.Background()
	eng, db := newTestEngine(t, transferFixtures()...)

	result, err := eng.GroupTransfer(ctx, []string{"out", "in"})
	require.NoError(t, err)
	require.NotEmpty(t, result.GroupID)
	require.Len(t, result.Transactions, 2)

	// A fee-sized gap is reported, not rejected.
	assert.Equal(t, model.AdvisoryNotice, result.Advisory.Level)
	assert.InDelta(t, -15, result.Advisory.NetAmount, 0.001)

	for _, id := range []string{"out", "in"} {
		stored := db.MustGet(id)
		assert.Equal(t, result.GroupID, stored.GroupID)
		assert.False(t, stored.IsSplit)
		assert.Equal(t, int64(2), stored.Version)
	}

	t.Run("add balances the group", func(t *testing.T) {
		added, err := eng.AddToTransferGroup(ctx, []string{"fee-refund", "in"}, result.GroupID)
		require.NoError(t, err)
		require.Len(t, added.Transactions, 1)
		assert.Equal(t, "fee-refund", added.Transactions[0].ID)
		assert.Len(t, added.Members, 3)
		assert.Equal(t, model.AdvisoryNone, added.Advisory.Level)
		assert.Equal(t, result.GroupID, db.MustGet("fee-refund").GroupID)

		// Existing members are touched so concurrent membership changes collide.
		assert.Equal(t, int64(3), db.MustGet("out").Version)
	})

	t.Run("adding only existing members changes nothing", func(t *testing.T) {
		again, err := eng.AddToTransferGroup(ctx, []string{"in"}, result.GroupID)
		require.NoError(t, err)
		assert.Empty(t, again.Transactions)
		assert.Len(t, again.Members, 3)
		assert.Equal(t, int64(3), db.MustGet("out").Version)
	})

	t.Run("remove keeps a group of two", func(t *testing.T) {
		removed, err := eng.RemoveFromTransferGroup(ctx, "fee-refund")
		require.NoError(t, err)
		assert.False(t, removed.Dissolved)
		assert.Empty(t, removed.Released)
		assert.Empty(t, removed.Transaction.GroupID)
		assert.Empty(t, db.MustGet("fee-refund").GroupID)
		assert.Equal(t, result.GroupID, db.MustGet("out").GroupID)
	})

	t.Run("remove dissolves a group of two", func(t *testing.T) {
		removed, err := eng.RemoveFromTransferGroup(ctx, "in")
		require.NoError(t, err)
		assert.True(t, removed.Dissolved)
		assert.Equal(t, result.GroupID, removed.GroupID)
		require.Len(t, removed.Released, 1)
		assert.Equal(t, "out", removed.Released[0].ID)

		assert.Empty(t, db.MustGet("in").GroupID)
		assert.Empty(t, db.MustGet("out").GroupID)

		members, err := db.Storage.GetGroupMembers(ctx, result.GroupID)
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	t.Run("remove from no group is a no-op", func(t *testing.T) {
		before := db.MustGet("in").Version
		removed, err := eng.RemoveFromTransferGroup(ctx, "in")
		require.NoError(t, err)
		assert.False(t, removed.Dissolved)
		assert.Equal(t, before, db.MustGet("in").Version)
	})
}

func TestEngine_GroupTransferErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		wantErr error
		name    string
		wantID  string
		ids     []string
	}{
		{name: "single id", ids: []string{"out"}, wantErr: common.ErrTooFewMembers},
		{name: "duplicate ids collapse", ids: []string{"out", "out"}, wantErr: common.ErrTooFewMembers},
		{name: "missing member", ids: []string{"out", "nope"}, wantErr: common.ErrNotFound, wantID: "nope"},
		{name: "refund child", ids: []string{"out", "refund"}, wantErr: common.ErrAlreadyLinked, wantID: "refund"},
		{name: "refund parent", ids: []string{"purchase", "in"}, wantErr: common.ErrAlreadyLinked, wantID: "purchase"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixtures := append(transferFixtures(),
				testutil.Debit("purchase", 60),
				testutil.Credit("refund", 60),
			)
			eng, db := newTestEngine(t, fixtures...)
			_, err := eng.LinkRefund(ctx, "refund", "purchase")
			require.NoError(t, err)

			_, err = eng.GroupTransfer(ctx, tt.ids)
			if tt.wantID != "" {
				assertFailedOn(t, err, tt.wantErr, tt.wantID)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			assert.Empty(t, db.MustGet("out").GroupID)
			assert.Equal(t, int64(1), db.MustGet("out").Version)
		})
	}
}

func TestEngine_AddToTransferGroupErrors(t *testing.T) {
	ctx := context.Background()
	eng, db := newTestEngine(t, append(transferFixtures(), testutil.Debit("big", 90))...)

	transfer, err := eng.GroupTransfer(ctx, []string{"out", "in"})
	require.NoError(t, err)

	split, err := eng.Split(ctx, "big", []model.SplitPart{{Amount: 45}, {Amount: 45}}, false)
	require.NoError(t, err)

	t.Run("unknown group", func(t *testing.T) {
		_, err := eng.AddToTransferGroup(ctx, []string{"extra"}, "no-such-group")
		assert.ErrorIs(t, err, common.ErrUnknownGroup)
	})

	t.Run("split group", func(t *testing.T) {
		_, err := eng.AddToTransferGroup(ctx, []string{"extra"}, split.GroupID)
		assert.ErrorIs(t, err, common.ErrUnknownGroup)
	})

	t.Run("member of another group", func(t *testing.T) {
		_, err := eng.AddToTransferGroup(ctx, []string{"extra", split.Created[0].ID}, transfer.GroupID)
		assertFailedOn(t, err, common.ErrAlreadyLinked, split.Created[0].ID)
		assert.Empty(t, db.MustGet("extra").GroupID)
	})
}

func TestEngine_UngroupTransfer(t *testing.T) {
	ctx := context.Background()
	eng, db := newTestEngine(t, transferFixtures()...)

	result, err := eng.GroupTransfer(ctx, []string{"out", "in", "fee-refund"})
	require.NoError(t, err)
	assert.Equal(t, model.AdvisoryNone, result.Advisory.Level)

	released, err := eng.UngroupTransfer(ctx, result.GroupID)
	require.NoError(t, err)
	assert.Len(t, released, 3)
	for _, txn := range released {
		assert.Empty(t, txn.GroupID)
		assert.Empty(t, db.MustGet(txn.ID).GroupID)
	}

	_, err = eng.UngroupTransfer(ctx, result.GroupID)
	assert.ErrorIs(t, err, common.ErrUnknownGroup)
}

func TestEngine_RemoveSplitPartFromTransferGroup(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t, testutil.Debit("big", 90))

	split, err := eng.Split(ctx, "big", []model.SplitPart{{Amount: 45}, {Amount: 45}}, false)
	require.NoError(t, err)

	_, err = eng.RemoveFromTransferGroup(ctx, split.Created[0].ID)
	assertFailedOn(t, err, common.ErrConflictingRelationship, split.Created[0].ID)

	_, err = eng.RemoveFromTransferGroup(ctx, "big")
	assertFailedOn(t, err, common.ErrConflictingRelationship, "big")
}
