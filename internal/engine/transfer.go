package engine

import (
	"context"
	"fmt"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// GroupTransfer puts ids into a new transfer group. None of them may already
// be in a relationship. A net imbalance is reported as an advisory, never an error.
func (e *Engine) GroupTransfer(ctx context.Context, transactionIDs []string) (*TransferResult, error) {
	transactionIDs = uniqueIDs(transactionIDs)
	if len(transactionIDs) < 2 {
		return nil, fmt.Errorf("%w: transfer group needs at least 2 transactions, got %d",
			common.ErrTooFewMembers, len(transactionIDs))
	}

	members, err := e.loadLiveSet(ctx, transactionIDs)
	if err != nil {
		return nil, err
	}
	for _, txn := range members {
		if err := e.requireUnrelated(ctx, txn); err != nil {
			return nil, err
		}
	}

	groupID := e.newID()
	updates := make([]model.Transaction, len(members))
	for i, txn := range members {
		updates[i] = txn.Clone()
		updates[i].GroupID = groupID
	}

	result, err := e.commit(ctx, service.Batch{Updates: updates, RequireNoRefunds: ids(members)})
	if err != nil {
		return nil, err
	}

	advisory, err := e.validator.ValidateTransferGroup(result.Updated)
	if err != nil {
		return nil, err
	}
	e.logAdvisory(ctx, groupID, advisory)
	common.LogInfo(ctx, "Grouped transfer", common.Fields{"group_id": groupID, "members": len(result.Updated)})

	return &TransferResult{
		GroupID:      groupID,
		Transactions: result.Updated,
		Members:      result.Updated,
		Advisory:     advisory,
	}, nil
}

// AddToTransferGroup adds ids to an existing transfer group. Ids already in
// the group are skipped.
func (e *Engine) AddToTransferGroup(ctx context.Context, transactionIDs []string, groupID string) (*TransferResult, error) {
	existing, err := e.transferMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	inGroup := make(map[string]bool, len(existing))
	for _, m := range existing {
		inGroup[m.ID] = true
	}
	var newIDs []string
	for _, id := range uniqueIDs(transactionIDs) {
		if !inGroup[id] {
			newIDs = append(newIDs, id)
		}
	}

	if len(newIDs) == 0 {
		advisory, err := e.validator.ValidateTransferGroup(existing)
		if err != nil {
			return nil, err
		}
		return &TransferResult{GroupID: groupID, Members: existing, Advisory: advisory}, nil
	}

	added, err := e.loadLiveSet(ctx, newIDs)
	if err != nil {
		return nil, err
	}
	for _, txn := range added {
		if err := e.requireUnrelated(ctx, txn); err != nil {
			return nil, err
		}
	}

	// Existing members are rewritten unchanged so a concurrent change to the
	// group's membership collides on their versions.
	updates := make([]model.Transaction, 0, len(existing)+len(added))
	for _, txn := range added {
		joined := txn.Clone()
		joined.GroupID = groupID
		updates = append(updates, joined)
	}
	updates = append(updates, existing...)

	result, err := e.commit(ctx, service.Batch{Updates: updates, RequireNoRefunds: ids(added)})
	if err != nil {
		return nil, err
	}

	advisory, err := e.validator.ValidateTransferGroup(result.Updated)
	if err != nil {
		return nil, err
	}
	e.logAdvisory(ctx, groupID, advisory)
	common.LogInfo(ctx, "Added to transfer group", common.Fields{"group_id": groupID, "added": len(added)})

	return &TransferResult{
		GroupID:      groupID,
		Transactions: result.Updated[:len(added)],
		Members:      result.Updated,
		Advisory:     advisory,
	}, nil
}

// RemoveFromTransferGroup takes id out of its transfer group. If fewer than
// two members would remain, the group dissolves and the rest are released.
func (e *Engine) RemoveFromTransferGroup(ctx context.Context, transactionID string) (*RemovalResult, error) {
	txn, err := e.loadLive(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.GroupID == "" {
		return &RemovalResult{Transaction: *txn}, nil
	}
	groupID := txn.GroupID

	members, err := e.store.GetGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if txn.IsSplit || model.GroupKind(members) == model.RelationshipSplit {
		return nil, common.NewTransactionError(transactionID,
			fmt.Errorf("%w: %s belongs to split %s, ungroup the split instead",
				common.ErrConflictingRelationship, transactionID, groupID))
	}

	removed := txn.Clone()
	removed.GroupID = ""

	var remaining []model.Transaction
	for _, m := range members {
		if m.ID != transactionID {
			remaining = append(remaining, m)
		}
	}

	dissolve := len(remaining) < 2
	updates := []model.Transaction{removed}
	for _, m := range remaining {
		if dissolve {
			m.GroupID = ""
		}
		updates = append(updates, m)
	}

	result, err := e.commit(ctx, service.Batch{Updates: updates})
	if err != nil {
		return nil, err
	}

	out := &RemovalResult{
		Transaction: result.Updated[0],
		GroupID:     groupID,
		Dissolved:   dissolve,
	}
	if dissolve {
		out.Released = result.Updated[1:]
		common.LogInfo(ctx, "Dissolved transfer group", common.Fields{
			"group_id":       groupID,
			"transaction_id": transactionID,
			"released":       len(out.Released),
		})
	} else {
		common.LogInfo(ctx, "Removed from transfer group", common.Fields{
			"group_id":       groupID,
			"transaction_id": transactionID,
		})
	}
	return out, nil
}

// UngroupTransfer dissolves a transfer group, clearing every member.
func (e *Engine) UngroupTransfer(ctx context.Context, groupID string) ([]model.Transaction, error) {
	members, err := e.transferMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}

	updates := make([]model.Transaction, len(members))
	for i, m := range members {
		updates[i] = m.Clone()
		updates[i].GroupID = ""
	}

	result, err := e.commit(ctx, service.Batch{Updates: updates})
	if err != nil {
		return nil, err
	}

	common.LogInfo(ctx, "Ungrouped transfer", common.Fields{"group_id": groupID, "members": len(result.Updated)})
	return result.Updated, nil
}

// transferMembers returns the live members of a transfer group.
func (e *Engine) transferMembers(ctx context.Context, groupID string) ([]model.Transaction, error) {
	if groupID == "" {
		return nil, fmt.Errorf("%w: empty group id", common.ErrUnknownGroup)
	}
	members, err := e.store.GetGroupMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: %s has no live members", common.ErrUnknownGroup, groupID)
	}
	if model.GroupKind(members) != model.RelationshipTransfer {
		return nil, fmt.Errorf("%w: %s is a split group", common.ErrUnknownGroup, groupID)
	}
	return members, nil
}

func (e *Engine) logAdvisory(ctx context.Context, groupID string, advisory model.Advisory) {
	if advisory.Level == model.AdvisoryNone {
		return
	}
	common.LogInfo(ctx, "Transfer group is unbalanced", common.Fields{
		"group_id": groupID,
		"level":    string(advisory.Level),
		"net":      advisory.NetAmount,
	})
}
