package engine

import (
	"context"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// LinkRefund marks the credit childID as a refund of the debit parentID.
// A child already linked elsewhere is moved; the parent is never written, only
// version-checked.
func (e *Engine) LinkRefund(ctx context.Context, childID, parentID string) (*model.Transaction, error) {
	child, err := e.loadLive(ctx, childID)
	if err != nil {
		return nil, err
	}
	parent, err := e.loadLive(ctx, parentID)
	if err != nil {
		return nil, err
	}

	if err := e.validator.ValidateRefundLink(*child, *parent); err != nil {
		return nil, err
	}

	if child.LinkParentID == parentID && child.IsRefund {
		return child, nil
	}

	updated := child.Clone()
	previous := updated.LinkParentID
	updated.LinkParentID = parentID
	updated.IsRefund = true

	// The parent is not written, but it must not join a group or change while
	// the link commits.
	result, err := e.commit(ctx, service.Batch{
		Updates:          []model.Transaction{updated},
		RequireUnchanged: []model.Transaction{*parent},
	})
	if err != nil {
		return nil, err
	}

	fields := common.Fields{"child_id": childID, "parent_id": parentID}
	if previous != "" {
		fields["previous_parent_id"] = previous
	}
	common.LogInfo(ctx, "Linked refund", fields)

	return &result.Updated[0], nil
}

// UnlinkRefund clears the refund link on childID. Unlinking an unlinked
// transaction is a no-op.
func (e *Engine) UnlinkRefund(ctx context.Context, childID string) (*model.Transaction, error) {
	child, err := e.loadLive(ctx, childID)
	if err != nil {
		return nil, err
	}

	if child.LinkParentID == "" && !child.IsRefund {
		return child, nil
	}

	updated := child.Clone()
	previous := updated.LinkParentID
	updated.LinkParentID = ""
	updated.IsRefund = false

	result, err := e.commit(ctx, service.Batch{Updates: []model.Transaction{updated}})
	if err != nil {
		return nil, err
	}

	common.LogInfo(ctx, "Unlinked refund", common.Fields{"child_id": childID, "parent_id": previous})
	return &result.Updated[0], nil
}
