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

func bulkFixtures() []model.Transaction {
	return []model.Transaction{
		testutil.Debit("a", 10, testutil.WithTags("coffee")),
		testutil.Debit("b", 20, testutil.WithTags("coffee", "work")),
		testutil.Debit("c", 30),
		testutil.Debit("out", 100),
		testutil.Credit("in", 100, testutil.WithAccount("savings")),
	}
}

func TestEngine_BulkUpdate(t *testing.T) {
	ctx := context.Background()
	eng, db := newTestEngine(t, bulkFixtures()...)

	update, err := ParseBulkUpdate(map[string]string{
		"category":    "Dining",
		"add_tags":    "team, lunch",
		"remove_tags": "coffee",
	})
	require.NoError(t, err)

	updated, err := eng.BulkUpdate(ctx, []string{"a", "b", "c", "a"}, update)
	require.NoError(t, err)
	require.Len(t, updated, 3)

	a := db.MustGet("a")
	assert.Equal(t, "Dining", a.Category)
	assert.Equal(t, []string{"team", "lunch"}, a.Tags)
	assert.Equal(t, int64(2), a.Version)

	b := db.MustGet("b")
	assert.Equal(t, []string{"work", "team", "lunch"}, b.Tags)

	cat, err := db.Storage.GetCategoryByName(ctx, "Dining")
	require.NoError(t, err)
	require.NotNil(t, cat)

	tags, err := db.Storage.GetTags(ctx)
	require.NoError(t, err)
	var tagNames []string
	for _, tag := range tags {
		tagNames = append(tagNames, tag.Name)
	}
	assert.ElementsMatch(t, []string{"team", "lunch"}, tagNames)
}

func TestEngine_BulkUpdateGroupedTransactions(t *testing.T) {
	ctx := context.Background()
	eng, db := newTestEngine(t, bulkFixtures()...)

	transfer, err := eng.GroupTransfer(ctx, []string{"out", "in"})
	require.NoError(t, err)

	t.Run("descriptive fields are allowed", func(t *testing.T) {
		notes := "moved to savings"
		_, err := eng.BulkUpdate(ctx, []string{"out", "in"}, model.BulkUpdate{Notes: &notes})
		require.NoError(t, err)
		assert.Equal(t, notes, db.MustGet("out").Notes)
		assert.Equal(t, transfer.GroupID, db.MustGet("out").GroupID)
	})

	t.Run("amount change is rejected for the whole batch", func(t *testing.T) {
		amount := 99.0
		before := db.MustGet("a").Version

		_, err := eng.BulkUpdate(ctx, []string{"a", "out"}, model.BulkUpdate{Amount: &amount})
		assertFailedOn(t, err, common.ErrConflictingRelationship, "out")

		a := db.MustGet("a")
		assert.InDelta(t, 10, a.Amount, 0.001)
		assert.Equal(t, before, a.Version)
	})

	t.Run("direction change on a refund parent is rejected", func(t *testing.T) {
		_, err := eng.LinkRefund(ctx, "c", "b")
		assert.ErrorIs(t, err, common.ErrInvalidDirection)

		credit := model.DirectionCredit
		_, err = eng.BulkUpdate(ctx, []string{"c"}, model.BulkUpdate{Direction: &credit})
		require.NoError(t, err)

		_, err = eng.LinkRefund(ctx, "c", "b")
		require.NoError(t, err)

		debit := model.DirectionDebit
		_, err = eng.BulkUpdate(ctx, []string{"b"}, model.BulkUpdate{Direction: &debit})
		assertFailedOn(t, err, common.ErrConflictingRelationship, "b")
	})
}

func TestEngine_BulkUpdateErrors(t *testing.T) {
	ctx := context.Background()
	eng, db := newTestEngine(t, bulkFixtures()...)
	category := "Dining"

	t.Run("missing id fails everything", func(t *testing.T) {
		_, err := eng.BulkUpdate(ctx, []string{"a", "ghost"}, model.BulkUpdate{Category: &category})
		assertFailedOn(t, err, common.ErrNotFound, "ghost")
		assert.Empty(t, db.MustGet("a").Category)
	})

	t.Run("empty update", func(t *testing.T) {
		_, err := eng.BulkUpdate(ctx, []string{"a"}, model.BulkUpdate{})
		assert.ErrorIs(t, err, common.ErrRejectedField)
	})

	t.Run("invalid direction", func(t *testing.T) {
		sideways := model.Direction("sideways")
		_, err := eng.BulkUpdate(ctx, []string{"a"}, model.BulkUpdate{Direction: &sideways})
		assert.ErrorIs(t, err, common.ErrInvalidDirection)
	})

	t.Run("breakdown larger than amount", func(t *testing.T) {
		breakdown := &model.SplitBreakdown{
			Mode:          model.SplitModeCustom,
			Participants:  []string{"sam"},
			CustomAmounts: map[string]float64{"sam": 500},
		}
		_, err := eng.BulkUpdate(ctx, []string{"a"}, model.BulkUpdate{SplitBreakdown: breakdown})
		assertFailedOn(t, err, model.ErrInvalidBreakdown, "a")
	})
}

func TestEngine_BulkUpdateSplitBreakdown(t *testing.T) {
	ctx := context.Background()
	eng, db := newTestEngine(t, bulkFixtures()...)

	update, err := ParseBulkUpdate(map[string]string{
		"split_breakdown": `{"mode":"equal","participants":["sam"],"include_owner":true}`,
	})
	require.NoError(t, err)

	_, err = eng.BulkUpdate(ctx, []string{"c"}, update)
	require.NoError(t, err)

	c := db.MustGet("c")
	require.NotNil(t, c.SplitBreakdown)
	require.NotNil(t, c.SplitShareAmount)
	assert.InDelta(t, 15, *c.SplitShareAmount, 0.001)

	amount := 40.0
	_, err = eng.BulkUpdate(ctx, []string{"c"}, model.BulkUpdate{Amount: &amount})
	require.NoError(t, err)
	assert.InDelta(t, 20, *db.MustGet("c").SplitShareAmount, 0.001)

	clearUpdate, err := ParseBulkUpdate(map[string]string{"split_breakdown": "none"})
	require.NoError(t, err)
	_, err = eng.BulkUpdate(ctx, []string{"c"}, clearUpdate)
	require.NoError(t, err)

	c = db.MustGet("c")
	assert.Nil(t, c.SplitBreakdown)
	assert.Nil(t, c.SplitShareAmount)
}

func TestParseBulkUpdate(t *testing.T) {
	tests := []struct {
		check   func(t *testing.T, u model.BulkUpdate)
		fields  map[string]string
		name    string
		wantErr bool
	}{
		{
			name:   "date and amount",
			fields: map[string]string{"date": "2024-05-01", "amount": "12.50"},
			check: func(t *testing.T, u model.BulkUpdate) {
				t.Helper()
				require.NotNil(t, u.Date)
				assert.Equal(t, "2024-05-01", u.Date.Format("2006-01-02"))
				require.NotNil(t, u.Amount)
				assert.InDelta(t, 12.5, *u.Amount, 0.001)
			},
		},
		{
			name:   "direction is normalized",
			fields: map[string]string{"direction": " Credit "},
			check: func(t *testing.T, u model.BulkUpdate) {
				t.Helper()
				require.NotNil(t, u.Direction)
				assert.Equal(t, model.DirectionCredit, *u.Direction)
			},
		},
		{
			name:   "tags replace the list",
			fields: map[string]string{"tags": "a, b,,c"},
			check: func(t *testing.T, u model.BulkUpdate) {
				t.Helper()
				require.NotNil(t, u.Tags)
				assert.Equal(t, []string{"a", "b", "c"}, *u.Tags)
			},
		},
		{
			name:   "empty tags clear the list",
			fields: map[string]string{"tags": ""},
			check: func(t *testing.T, u model.BulkUpdate) {
				t.Helper()
				require.NotNil(t, u.Tags)
				assert.Empty(t, *u.Tags)
			},
		},
		{name: "group id is rejected", fields: map[string]string{"transaction_group_id": "g1"}, wantErr: true},
		{name: "link parent is rejected", fields: map[string]string{"link_parent_id": "d1"}, wantErr: true},
		{name: "split flag is rejected", fields: map[string]string{"IS_SPLIT": "true"}, wantErr: true},
		{name: "unknown field", fields: map[string]string{"merchant": "x"}, wantErr: true},
		{name: "bad amount", fields: map[string]string{"amount": "lots"}, wantErr: true},
		{name: "bad date", fields: map[string]string{"date": "05/01/2024"}, wantErr: true},
		{name: "bad breakdown", fields: map[string]string{"split_breakdown": "{"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			update, err := ParseBulkUpdate(tt.fields)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrRejectedField)
				return
			}
			require.NoError(t, err)
			tt.check(t, update)
		})
	}
}
