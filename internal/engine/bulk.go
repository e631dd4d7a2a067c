package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// BulkUpdate applies one field assignment to many transactions, all or none.
// Amount and direction may only change on transactions outside every
// relationship, since either could break the relationship's rules.
func (e *Engine) BulkUpdate(ctx context.Context, transactionIDs []string, update model.BulkUpdate) ([]model.Transaction, error) {
	if update.IsEmpty() {
		return nil, fmt.Errorf("%w: update sets no fields", common.ErrRejectedField)
	}
	if err := validateBulkValues(update); err != nil {
		return nil, err
	}

	transactionIDs = uniqueIDs(transactionIDs)
	if len(transactionIDs) == 0 {
		return nil, fmt.Errorf("%w: no transaction ids", common.ErrNotFound)
	}

	txns, err := e.loadLiveSet(ctx, transactionIDs)
	if err != nil {
		return nil, err
	}

	updates := make([]model.Transaction, 0, len(txns))
	for _, txn := range txns {
		if update.ChangesAmountOrDirection() {
			if err := e.requireFreeForAmountChange(ctx, txn); err != nil {
				return nil, err
			}
		}

		changed := txn.Clone()
		update.Apply(&changed)
		if changed.SplitBreakdown != nil {
			if err := changed.SplitBreakdown.Validate(changed.Amount); err != nil {
				return nil, common.NewTransactionError(txn.ID, err)
			}
		}
		updates = append(updates, changed)
	}

	batch := service.Batch{
		Categories: update.CategoryNames(),
		Tags:       update.TagNames(),
		Updates:    updates,
	}
	if update.ChangesAmountOrDirection() {
		batch.RequireNoRefunds = ids(txns)
	}

	result, err := e.commit(ctx, batch)
	if err != nil {
		return nil, err
	}

	common.LogInfo(ctx, "Bulk updated transactions", common.Fields{"count": len(result.Updated)})
	return result.Updated, nil
}

func (e *Engine) requireFreeForAmountChange(ctx context.Context, txn model.Transaction) error {
	if txn.HasRelationshipFields() {
		return common.NewTransactionError(txn.ID,
			fmt.Errorf("%w: cannot change amount or direction of %s, it is a %s",
				common.ErrConflictingRelationship, txn.ID, describeRelationship(txn)))
	}
	parent, err := e.isRefundParent(ctx, txn.ID)
	if err != nil {
		return err
	}
	if parent {
		return common.NewTransactionError(txn.ID,
			fmt.Errorf("%w: cannot change amount or direction of %s, it has refunds linked to it",
				common.ErrConflictingRelationship, txn.ID))
	}
	return nil
}

func validateBulkValues(update model.BulkUpdate) error {
	if update.Amount != nil && *update.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", common.ErrRejectedField)
	}
	if update.Direction != nil && !update.Direction.Valid() {
		return fmt.Errorf("%w: direction %q", common.ErrInvalidDirection, *update.Direction)
	}
	if update.AccountID != nil && strings.TrimSpace(*update.AccountID) == "" {
		return fmt.Errorf("%w: account_id must not be empty", common.ErrRejectedField)
	}
	if update.Date != nil && update.Date.IsZero() {
		return fmt.Errorf("%w: date must be set", common.ErrRejectedField)
	}
	return nil
}

// ParseBulkUpdate builds an update from field/value pairs as typed on a command
// line. Relationship fields and unknown names are rejected.
func ParseBulkUpdate(fields map[string]string) (model.BulkUpdate, error) {
	var update model.BulkUpdate

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := fields[name]
		key := strings.ToLower(strings.TrimSpace(name))

		for _, rel := range model.RelationshipFields {
			if key == rel {
				return update, fmt.Errorf("%w: %s is managed by relationship operations", common.ErrRejectedField, name)
			}
		}

		switch model.BulkField(key) {
		case model.BulkFieldDate:
			d, err := time.Parse("2006-01-02", strings.TrimSpace(value))
			if err != nil {
				return update, fmt.Errorf("%w: date %q: %w", common.ErrRejectedField, value, err)
			}
			update.Date = &d
		case model.BulkFieldAmount:
			amount, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				return update, fmt.Errorf("%w: amount %q: %w", common.ErrRejectedField, value, err)
			}
			update.Amount = &amount
		case model.BulkFieldDirection:
			d := model.Direction(strings.ToLower(strings.TrimSpace(value)))
			update.Direction = &d
		case model.BulkFieldAccount:
			update.AccountID = stringPtr(value)
		case model.BulkFieldDescription:
			update.Description = stringPtr(value)
		case model.BulkFieldCategory:
			update.Category = stringPtr(value)
		case model.BulkFieldSubcategory:
			update.Subcategory = stringPtr(value)
		case model.BulkFieldNotes:
			update.Notes = stringPtr(value)
		case model.BulkFieldTags:
			tags := splitList(value)
			update.Tags = &tags
		case model.BulkFieldAddTags:
			update.AddTags = splitList(value)
		case model.BulkFieldRemoveTags:
			update.RemoveTags = splitList(value)
		case model.BulkFieldSplitBreakdown:
			if v := strings.TrimSpace(value); v == "" || v == "none" {
				update.ClearSplitBreakdown = true
				continue
			}
			var b model.SplitBreakdown
			if err := json.Unmarshal([]byte(value), &b); err != nil {
				return update, fmt.Errorf("%w: split_breakdown: %w", common.ErrRejectedField, err)
			}
			update.SplitBreakdown = &b
		default:
			return update, fmt.Errorf("%w: unknown field %q", common.ErrRejectedField, name)
		}
	}

	return update, nil
}

func stringPtr(s string) *string {
	s = strings.TrimSpace(s)
	return &s
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
