// Package engine weaves a flat ledger of transactions into refund links,
// transfer groups and split groups, keeping them consistent.
//
// Every operation is a single request/response unit: it reads what it needs,
// validates, and hands one conditional batch to the store. Nothing is cached
// between calls, so a cancelled or failed call leaves no state behind.
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// Engine orchestrates relationship mutations against the ledger store.
type Engine struct {
	store     Store
	validator *Validator
	newID     func() string
}

// Config holds the tolerances used by the consistency validator.
type Config struct {
	// TransferNoticeThreshold is the net imbalance at which a transfer group gets a notice.
	TransferNoticeThreshold float64
	// TransferWarningThreshold is the net imbalance at which a notice becomes a warning.
	TransferWarningThreshold float64
	// SplitTolerance is the allowed difference between a split's parts and its original.
	SplitTolerance float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		TransferNoticeThreshold:  10,
		TransferWarningThreshold: 100,
		SplitTolerance:           0.01,
	}
}

// Validate checks that the thresholds are usable.
func (c Config) Validate() error {
	if c.TransferNoticeThreshold <= 0 {
		return fmt.Errorf("%w: transfer notice threshold must be positive", common.ErrInvalidConfig)
	}
	if c.TransferWarningThreshold < c.TransferNoticeThreshold {
		return fmt.Errorf("%w: transfer warning threshold %.2f is below notice threshold %.2f",
			common.ErrInvalidConfig, c.TransferWarningThreshold, c.TransferNoticeThreshold)
	}
	if c.SplitTolerance <= 0 {
		return fmt.Errorf("%w: split tolerance must be positive", common.ErrInvalidConfig)
	}
	return nil
}

// New creates a new engine with the default configuration.
func New(store Store) *Engine {
	return NewWithConfig(store, DefaultConfig())
}

// NewWithConfig creates a new engine with custom configuration.
func NewWithConfig(store Store, config Config) *Engine {
	return &Engine{
		store:     store,
		validator: NewValidator(config),
		newID:     uuid.NewString,
	}
}

// Validator returns the consistency validator the engine commits through.
func (e *Engine) Validator() *Validator {
	return e.validator
}

// loadLive returns the transaction with id, failing if it is missing or deleted.
func (e *Engine) loadLive(ctx context.Context, id string) (*model.Transaction, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty transaction id", common.ErrNotFound)
	}
	txn, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !txn.IsLive() {
		return nil, common.NewTransactionError(id, common.ErrNotFound)
	}
	return txn, nil
}

// loadLiveSet loads every id, failing on the first one that is missing or deleted.
func (e *Engine) loadLiveSet(ctx context.Context, ids []string) ([]model.Transaction, error) {
	found, err := e.store.GetTransactions(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.Transaction, len(found))
	for _, txn := range found {
		byID[txn.ID] = txn
	}

	txns := make([]model.Transaction, 0, len(ids))
	for _, id := range ids {
		txn, ok := byID[id]
		if !ok || !txn.IsLive() {
			return nil, common.NewTransactionError(id, common.ErrNotFound)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// isRefundParent reports whether live refunds point at id.
func (e *Engine) isRefundParent(ctx context.Context, id string) (bool, error) {
	children, err := e.store.GetRefundChildren(ctx, id)
	if err != nil {
		return false, err
	}
	return len(children) > 0, nil
}

// requireUnrelated fails if txn already takes part in any relationship.
func (e *Engine) requireUnrelated(ctx context.Context, txn model.Transaction) error {
	if txn.HasRelationshipFields() {
		return common.NewTransactionError(txn.ID,
			fmt.Errorf("%w: %s", common.ErrAlreadyLinked, describeRelationship(txn)))
	}
	parent, err := e.isRefundParent(ctx, txn.ID)
	if err != nil {
		return err
	}
	if parent {
		return common.NewTransactionError(txn.ID,
			fmt.Errorf("%w: has refunds linked to it", common.ErrAlreadyLinked))
	}
	return nil
}

// commit validates every record the batch writes and applies it atomically.
func (e *Engine) commit(ctx context.Context, batch service.Batch) (*service.BatchResult, error) {
	for _, txn := range batch.Inserts {
		if err := e.validator.ValidateExclusiveMembership(txn); err != nil {
			return nil, err
		}
	}
	for _, txn := range batch.Updates {
		if err := e.validator.ValidateExclusiveMembership(txn); err != nil {
			return nil, err
		}
	}

	// Abandoned calls must not reach the store.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return e.store.ApplyBatch(ctx, batch)
}

func describeRelationship(txn model.Transaction) string {
	switch {
	case txn.LinkParentID != "":
		return fmt.Sprintf("refund of %s", txn.LinkParentID)
	case txn.IsSplit:
		return fmt.Sprintf("part of split %s", txn.GroupID)
	case txn.GroupID != "":
		return fmt.Sprintf("member of group %s", txn.GroupID)
	default:
		return "unrelated"
	}
}

// uniqueIDs drops empty and repeated ids, keeping first-seen order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func ids(txns []model.Transaction) []string {
	out := make([]string, len(txns))
	for i, txn := range txns {
		out[i] = txn.ID
	}
	return out
}
