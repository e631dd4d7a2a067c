// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate      *time.Time
	EndDate        *time.Time
	AccountID      string
	Limit          int
	Offset         int
	IncludeDeleted bool
}

// Batch is a set of writes the store must commit as a single unit.
// Updates and deletes are conditional on the Version the caller read; a record
// whose version moved fails the whole batch with common.ErrConflict.
type Batch struct {
	// Categories and Tags are created if missing, inside the same unit.
	Categories []string
	Tags       []string
	Inserts    []model.Transaction
	Updates    []model.Transaction
	Deletes    []model.Transaction

	// RequireUnchanged lists records the batch reads but does not write.
	// Each must still be live at the Version the caller read.
	RequireUnchanged []model.Transaction
	// RequireNoRefunds lists ids no live refund may point at when the batch commits.
	RequireNoRefunds []string
}

// IsEmpty reports whether the batch writes nothing.
func (b Batch) IsEmpty() bool {
	return len(b.Categories) == 0 && len(b.Tags) == 0 &&
		len(b.Inserts) == 0 && len(b.Updates) == 0 && len(b.Deletes) == 0
}

// BatchResult holds the authoritative post-write state of a committed batch.
type BatchResult struct {
	Inserted []model.Transaction
	Updated  []model.Transaction
	Deleted  int
}

// LedgerReader is the read side of the ledger store.
type LedgerReader interface {
	// GetTransaction returns the record with the given id, deleted or not.
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	// GetTransactions returns the records that exist, in input order.
	GetTransactions(ctx context.Context, ids []string) ([]model.Transaction, error)
	// GetGroupMembers returns the live records carrying groupID.
	GetGroupMembers(ctx context.Context, groupID string) ([]model.Transaction, error)
	// GetRefundChildren returns the live records whose link parent is parentID.
	GetRefundChildren(ctx context.Context, parentID string) ([]model.Transaction, error)
}

// LedgerWriter is the write side of the ledger store.
type LedgerWriter interface {
	// ApplyBatch commits every write in batch or none of them.
	ApplyBatch(ctx context.Context, batch Batch) (*BatchResult, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	LedgerReader
	LedgerWriter

	// Transaction operations
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	SoftDeleteTransaction(ctx context.Context, id string) error

	// Taxonomy operations
	GetCategories(ctx context.Context) ([]model.Category, error)
	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	CreateCategory(ctx context.Context, name string) (*model.Category, error)
	GetTags(ctx context.Context) ([]model.Tag, error)

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}
