package engine

import (
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// Store is the slice of the ledger store the engine depends on.
type Store interface {
	service.LedgerReader
	service.LedgerWriter
}

// TransferResult is returned by operations that create or extend a transfer group.
type TransferResult struct {
	GroupID string
	// Transactions are the records whose group membership changed.
	Transactions []model.Transaction
	// Members is every live member of the group after the write.
	Members  []model.Transaction
	Advisory model.Advisory
}

// RemovalResult is returned when a member leaves a transfer group.
type RemovalResult struct {
	Transaction model.Transaction
	GroupID     string
	// Released holds members ungrouped because the group fell below two.
	Released  []model.Transaction
	Dissolved bool
}

// SplitResult is returned by Split.
type SplitResult struct {
	// Original is the restorable anchor, nil when the original was deleted.
	Original *model.Transaction
	GroupID  string
	Created  []model.Transaction
}

// UngroupOutcome tells callers which of the two ungroup paths ran.
type UngroupOutcome string

const (
	// UngroupRestored means the anchor was restored and the parts deleted.
	UngroupRestored UngroupOutcome = "restored"
	// UngroupDeleted means there was no anchor, so every member was deleted.
	UngroupDeleted UngroupOutcome = "deleted"
)

// UngroupSplitResult is returned by UngroupSplit.
type UngroupSplitResult struct {
	Restored     *model.Transaction
	Outcome      UngroupOutcome
	DeletedCount int
}
