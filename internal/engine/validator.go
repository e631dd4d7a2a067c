package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Validator holds the pure consistency checks. It never touches the store,
// so every check can run against proposed state before anything is written.
type Validator struct {
	notice    decimal.Decimal
	warning   decimal.Decimal
	tolerance decimal.Decimal
}

// NewValidator creates a validator with the given thresholds.
func NewValidator(cfg Config) *Validator {
	return &Validator{
		notice:    decimal.NewFromFloat(cfg.TransferNoticeThreshold),
		warning:   decimal.NewFromFloat(cfg.TransferWarningThreshold),
		tolerance: decimal.NewFromFloat(cfg.SplitTolerance),
	}
}

// ValidateRefundLink checks that child may be linked as a refund of parent.
func (v *Validator) ValidateRefundLink(child, parent model.Transaction) error {
	if child.ID == parent.ID {
		return common.NewTransactionError(child.ID, common.ErrSelfReference)
	}
	if child.Direction != model.DirectionCredit {
		return common.NewTransactionError(child.ID,
			fmt.Errorf("%w: refund must be a credit, got %s", common.ErrInvalidDirection, child.Direction))
	}
	if parent.Direction != model.DirectionDebit {
		return common.NewTransactionError(parent.ID,
			fmt.Errorf("%w: refunded transaction must be a debit, got %s", common.ErrInvalidDirection, parent.Direction))
	}
	if child.GroupID != "" || child.IsSplit {
		return common.NewTransactionError(child.ID,
			fmt.Errorf("%w: %s", common.ErrAlreadyLinked, describeRelationship(child)))
	}
	if parent.HasRelationshipFields() {
		return common.NewTransactionError(parent.ID,
			fmt.Errorf("%w: %s", common.ErrAlreadyLinked, describeRelationship(parent)))
	}
	return nil
}

// ValidateTransferGroup checks group cardinality and grades the net imbalance.
// An imbalance is advisory only; the only error is TooFewMembers.
func (v *Validator) ValidateTransferGroup(members []model.Transaction) (model.Advisory, error) {
	if len(members) < 2 {
		return model.Advisory{}, fmt.Errorf("%w: transfer group needs at least 2 transactions, got %d",
			common.ErrTooFewMembers, len(members))
	}

	net := decimal.Zero
	for i := range members {
		net = net.Add(decimal.NewFromFloat(members[i].SignedAmount()))
	}

	advisory := model.Advisory{NetAmount: net.Round(2).InexactFloat64()}
	imbalance := net.Abs()
	switch {
	case imbalance.GreaterThanOrEqual(v.warning):
		advisory.Level = model.AdvisoryWarning
		advisory.Message = fmt.Sprintf("transfer legs are off by %s, which looks like more than a fee", net.StringFixed(2))
	case imbalance.GreaterThanOrEqual(v.notice):
		advisory.Level = model.AdvisoryNotice
		advisory.Message = fmt.Sprintf("transfer legs are off by %s", net.StringFixed(2))
	}
	return advisory, nil
}

// ValidateSplit checks that the parts are positive and add up to the original.
func (v *Validator) ValidateSplit(original model.Transaction, parts []model.SplitPart) error {
	if len(parts) == 0 {
		return common.NewTransactionError(original.ID, common.ErrEmptySplit)
	}

	sum := decimal.Zero
	for i, part := range parts {
		if part.Amount <= 0 {
			return common.NewTransactionError(original.ID,
				fmt.Errorf("%w: part %d has non-positive amount %.2f", common.ErrAmountMismatch, i+1, part.Amount))
		}
		sum = sum.Add(decimal.NewFromFloat(part.Amount))
	}

	total := decimal.NewFromFloat(original.Amount).Abs()
	if sum.Sub(total).Abs().GreaterThan(v.tolerance) {
		return common.NewTransactionError(original.ID,
			fmt.Errorf("%w: parts sum to %s, original is %s",
				common.ErrAmountMismatch, sum.StringFixed(2), total.StringFixed(2)))
	}
	return nil
}

// ValidateExclusiveMembership checks that txn holds at most one relationship.
func (v *Validator) ValidateExclusiveMembership(txn model.Transaction) error {
	if txn.IsDeleted {
		return nil
	}
	if txn.LinkParentID != "" && (txn.GroupID != "" || txn.IsSplit) {
		return common.NewTransactionError(txn.ID,
			fmt.Errorf("%w: refund link and group membership are both set", common.ErrConflictingRelationship))
	}
	if txn.IsSplit && txn.GroupID == "" {
		return common.NewTransactionError(txn.ID,
			fmt.Errorf("%w: split part without a group", common.ErrConflictingRelationship))
	}
	if txn.IsRefund && txn.LinkParentID == "" {
		return common.NewTransactionError(txn.ID,
			fmt.Errorf("%w: refund flag without a parent", common.ErrConflictingRelationship))
	}
	return nil
}
