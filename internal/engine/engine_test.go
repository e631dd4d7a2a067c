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

func newTestEngine(t *testing.T, txns ...model.Transaction) (*Engine, *testutil.TestDB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	if len(txns) > 0 {
		db.Seed(txns...)
	}
	return New(db.Storage), db
}

func assertFailedOn(t *testing.T, err error, target error, id string) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, target)
	failed, ok := common.FailedTransactionID(err)
	require.True(t, ok, "error should name the failing transaction: %v", err)
	assert.Equal(t, id, failed)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "defaults",
			config: DefaultConfig(),
		},
		{
			name:    "zero notice threshold",
			config:  Config{TransferNoticeThreshold: 0, TransferWarningThreshold: 100, SplitTolerance: 0.01},
			wantErr: true,
		},
		{
			name:    "warning below notice",
			config:  Config{TransferNoticeThreshold: 50, TransferWarningThreshold: 10, SplitTolerance: 0.01},
			wantErr: true,
		},
		{
			name:   "warning equal to notice",
			config: Config{TransferNoticeThreshold: 50, TransferWarningThreshold: 50, SplitTolerance: 0.01},
		},
		{
			name:    "negative tolerance",
			config:  Config{TransferNoticeThreshold: 10, TransferWarningThreshold: 100, SplitTolerance: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEngine_CancelledContextWritesNothing(t *testing.T) {
	eng, db := newTestEngine(t,
		testutil.Debit("d1", 100),
		testutil.Credit("c1", 40),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.LinkRefund(ctx, "c1", "d1")
	require.Error(t, err)

	c1 := db.MustGet("c1")
	assert.Empty(t, c1.LinkParentID)
	assert.Equal(t, int64(1), c1.Version)
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, uniqueIDs([]string{"a", "", "b", "a", "c", "b"}))
	assert.Empty(t, uniqueIDs(nil))
}
