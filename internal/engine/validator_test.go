package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/testutil"
)

func TestValidator_ValidateRefundLink(t *testing.T) {
	v := NewValidator(DefaultConfig())

	debit := testutil.Debit("d1", 100)
	credit := testutil.Credit("c1", 40)

	grouped := testutil.Credit("c2", 40)
	grouped.GroupID = "g1"

	splitParent := testutil.Debit("d2", 100)
	splitParent.GroupID = "s1"
	splitParent.IsSplit = true

	childAsParent := testutil.Debit("d3", 100)
	childAsParent.LinkParentID = "d9"

	linkedElsewhere := testutil.Credit("c3", 40)
	linkedElsewhere.LinkParentID = "d9"
	linkedElsewhere.IsRefund = true

	tests := []struct {
		wantErr error
		name    string
		wantID  string
		child   model.Transaction
		parent  model.Transaction
	}{
		{name: "credit refunds debit", child: credit, parent: debit},
		{name: "child linked elsewhere may move", child: linkedElsewhere, parent: debit},
		{name: "self reference", child: credit, parent: credit, wantErr: common.ErrSelfReference, wantID: "c1"},
		{name: "self reference wins over direction", child: debit, parent: debit, wantErr: common.ErrSelfReference, wantID: "d1"},
		{name: "debit child", child: testutil.Debit("d4", 10), parent: debit, wantErr: common.ErrInvalidDirection, wantID: "d4"},
		{name: "credit parent", child: credit, parent: testutil.Credit("c4", 10), wantErr: common.ErrInvalidDirection, wantID: "c4"},
		{name: "child in transfer group", child: grouped, parent: debit, wantErr: common.ErrAlreadyLinked, wantID: "c2"},
		{name: "parent is a split part", child: credit, parent: splitParent, wantErr: common.ErrAlreadyLinked, wantID: "d2"},
		{name: "parent is itself a refund", child: credit, parent: childAsParent, wantErr: common.ErrAlreadyLinked, wantID: "d3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateRefundLink(tt.child, tt.parent)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assertFailedOn(t, err, tt.wantErr, tt.wantID)
		})
	}
}

func TestValidator_ValidateTransferGroup(t *testing.T) {
	v := NewValidator(DefaultConfig())

	tests := []struct {
		name      string
		wantLevel model.AdvisoryLevel
		members   []model.Transaction
		wantNet   float64
		wantErr   bool
	}{
		{
			name:    "single member",
			members: []model.Transaction{testutil.Debit("d1", 100)},
			wantErr: true,
		},
		{
			name:      "balanced",
			members:   []model.Transaction{testutil.Debit("d1", 500), testutil.Credit("c1", 500)},
			wantLevel: model.AdvisoryNone,
			wantNet:   0,
		},
		{
			name:      "small fee stays quiet",
			members:   []model.Transaction{testutil.Debit("d1", 500), testutil.Credit("c1", 490.01)},
			wantLevel: model.AdvisoryNone,
			wantNet:   -9.99,
		},
		{
			name:      "notice at threshold",
			members:   []model.Transaction{testutil.Debit("d1", 500), testutil.Credit("c1", 490)},
			wantLevel: model.AdvisoryNotice,
			wantNet:   -10,
		},
		{
			name:      "notice for fee",
			members:   []model.Transaction{testutil.Debit("d1", 500), testutil.Credit("c1", 485)},
			wantLevel: model.AdvisoryNotice,
			wantNet:   -15,
		},
		{
			name:      "warning for large gap",
			members:   []model.Transaction{testutil.Debit("d1", 500), testutil.Credit("c1", 350)},
			wantLevel: model.AdvisoryWarning,
			wantNet:   -150,
		},
		{
			name: "three legs",
			members: []model.Transaction{
				testutil.Debit("d1", 300),
				testutil.Credit("c1", 200),
				testutil.Credit("c2", 100),
			},
			wantLevel: model.AdvisoryNone,
			wantNet:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			advisory, err := v.ValidateTransferGroup(tt.members)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrTooFewMembers)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, advisory.Level)
			assert.InDelta(t, tt.wantNet, advisory.NetAmount, 0.001)
			if tt.wantLevel != model.AdvisoryNone {
				assert.NotEmpty(t, advisory.Message)
			}
		})
	}
}

func TestValidator_ValidateSplit(t *testing.T) {
	v := NewValidator(DefaultConfig())
	original := testutil.Debit("d1", 100)

	parts := func(amounts ...float64) []model.SplitPart {
		out := make([]model.SplitPart, len(amounts))
		for i, a := range amounts {
			out[i] = model.SplitPart{Amount: a}
		}
		return out
	}

	tests := []struct {
		wantErr error
		name    string
		parts   []model.SplitPart
	}{
		{name: "no parts", parts: nil, wantErr: common.ErrEmptySplit},
		{name: "exact", parts: parts(60, 40)},
		{name: "thirds", parts: parts(33.33, 33.33, 33.34)},
		{name: "within tolerance", parts: parts(50, 50.01)},
		{name: "outside tolerance", parts: parts(50, 50.02), wantErr: common.ErrAmountMismatch},
		{name: "short", parts: parts(60, 30), wantErr: common.ErrAmountMismatch},
		{name: "zero part", parts: parts(100, 0), wantErr: common.ErrAmountMismatch},
		{name: "negative part", parts: parts(120, -20), wantErr: common.ErrAmountMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateSplit(original, tt.parts)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assertFailedOn(t, err, tt.wantErr, "d1")
		})
	}
}

func TestValidator_ValidateExclusiveMembership(t *testing.T) {
	v := NewValidator(DefaultConfig())

	both := testutil.Credit("c1", 10)
	both.LinkParentID = "d1"
	both.IsRefund = true
	both.GroupID = "g1"

	orphanPart := testutil.Debit("p1", 10)
	orphanPart.IsSplit = true

	flagOnly := testutil.Credit("c2", 10)
	flagOnly.IsRefund = true

	deleted := both
	deleted.IsDeleted = true

	refund := testutil.Credit("c3", 10)
	refund.LinkParentID = "d1"
	refund.IsRefund = true

	part := testutil.Debit("p2", 10)
	part.GroupID = "s1"
	part.IsSplit = true

	tests := []struct {
		name    string
		txn     model.Transaction
		wantErr bool
	}{
		{name: "plain", txn: testutil.Debit("d1", 10)},
		{name: "refund", txn: refund},
		{name: "split part", txn: part},
		{name: "deleted records are ignored", txn: deleted},
		{name: "refund and group", txn: both, wantErr: true},
		{name: "split part without group", txn: orphanPart, wantErr: true},
		{name: "refund flag without parent", txn: flagOnly, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateExclusiveMembership(tt.txn)
			if tt.wantErr {
				assertFailedOn(t, err, common.ErrConflictingRelationship, tt.txn.ID)
				return
			}
			assert.NoError(t, err)
		})
	}
}
