package engine

import (
	"context"
	"fmt"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// Split breaks one transaction into parts that share a new group id.
// The original stays as the restorable anchor unless deleteOriginal is set,
// in which case it is soft-deleted and the split can no longer be restored.
func (e *Engine) Split(ctx context.Context, transactionID string, parts []model.SplitPart, deleteOriginal bool) (*SplitResult, error) {
	source, err := e.loadLive(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := e.requireUnrelated(ctx, *source); err != nil {
		return nil, err
	}
	if err := e.validator.ValidateSplit(*source, parts); err != nil {
		return nil, err
	}
	// Without the original a single part would be a group of one.
	if deleteOriginal && len(parts) < 2 {
		return nil, common.NewTransactionError(source.ID,
			fmt.Errorf("%w: a split that deletes its original needs at least 2 parts, got %d",
				common.ErrTooFewMembers, len(parts)))
	}

	groupID := e.newID()
	batch := service.Batch{Inserts: make([]model.Transaction, 0, len(parts))}
	for _, part := range parts {
		piece := model.Transaction{
			ID:          e.newID(),
			Date:        source.Date,
			AccountID:   source.AccountID,
			Direction:   source.Direction,
			Amount:      part.Amount,
			Description: part.Description,
			Category:    part.Category,
			Subcategory: part.Subcategory,
			Notes:       part.Notes,
			Tags:        append([]string(nil), part.Tags...),
			GroupID:     groupID,
			IsSplit:     true,
		}
		if piece.Description == "" {
			piece.Description = source.Description
		}
		piece.Hash = piece.GenerateHash()
		batch.Inserts = append(batch.Inserts, piece)

		batch.Categories = appendNames(batch.Categories, part.Category, part.Subcategory)
		batch.Tags = appendNames(batch.Tags, part.Tags...)
	}

	original := source.Clone()
	if deleteOriginal {
		original.IsDeleted = true
		original.GroupID = ""
	} else {
		original.GroupID = groupID
	}
	batch.Updates = []model.Transaction{original}
	batch.RequireNoRefunds = []string{source.ID}

	result, err := e.commit(ctx, batch)
	if err != nil {
		return nil, err
	}

	common.LogInfo(ctx, "Split transaction", common.Fields{
		"transaction_id":   transactionID,
		"group_id":         groupID,
		"parts":            len(result.Inserted),
		"original_deleted": deleteOriginal,
	})

	out := &SplitResult{GroupID: groupID, Created: result.Inserted}
	if !deleteOriginal {
		anchor := result.Updated[0]
		out.Original = &anchor
	}
	return out, nil
}

// UngroupSplit undoes a split. With an anchor the anchor is restored and the
// parts are deleted. Without one there is nothing to restore, so every part is
// deleted and the outcome says so.
func (e *Engine) UngroupSplit(ctx context.Context, groupID string) (*UngroupSplitResult, error) {
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
	if model.GroupKind(members) != model.RelationshipSplit {
		return nil, fmt.Errorf("%w: %s is a transfer group", common.ErrUnknownGroup, groupID)
	}

	var anchors, pieces []model.Transaction
	for _, m := range members {
		if m.IsSplit {
			pieces = append(pieces, m)
		} else {
			anchors = append(anchors, m)
		}
	}
	if len(anchors) > 1 {
		return nil, fmt.Errorf("%w: split %s has %d originals",
			common.ErrConflictingRelationship, groupID, len(anchors))
	}

	if len(anchors) == 0 {
		result, err := e.commit(ctx, service.Batch{Deletes: pieces})
		if err != nil {
			return nil, err
		}
		common.LogInfo(ctx, "Deleted split without original", common.Fields{
			"group_id": groupID,
			"deleted":  result.Deleted,
		})
		return &UngroupSplitResult{Outcome: UngroupDeleted, DeletedCount: result.Deleted}, nil
	}

	restored := anchors[0].Clone()
	restored.GroupID = ""

	result, err := e.commit(ctx, service.Batch{
		Updates: []model.Transaction{restored},
		Deletes: pieces,
	})
	if err != nil {
		return nil, err
	}

	common.LogInfo(ctx, "Restored split original", common.Fields{
		"group_id":       groupID,
		"transaction_id": restored.ID,
		"deleted":        result.Deleted,
	})
	anchor := result.Updated[0]
	return &UngroupSplitResult{Restored: &anchor, Outcome: UngroupRestored, DeletedCount: result.Deleted}, nil
}

func appendNames(dst []string, names ...string) []string {
	for _, name := range names {
		if name == "" {
			continue
		}
		dup := false
		for _, existing := range dst {
			if existing == name {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, name)
		}
	}
	return dst
}
