// Package storage provides the SQLite-backed ledger store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidBatch       = errors.New("invalid batch")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i, txn := range transactions {
		if err := validateTransaction(&txn); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if txn.AccountID == "" {
		return fmt.Errorf("%w: missing account ID", ErrInvalidTransaction)
	}
	if !txn.Direction.Valid() {
		return fmt.Errorf("%w: direction %q", ErrInvalidTransaction, txn.Direction)
	}
	if txn.Amount < 0 {
		return fmt.Errorf("%w: amount must be positive, got %.2f", ErrInvalidTransaction, txn.Amount)
	}
	return nil
}

// validateBatch rejects batches the store could only half apply.
func validateBatch(batch service.Batch) error {
	seen := make(map[string]bool)
	check := func(kind string, txns []model.Transaction, full bool) error {
		for i := range txns {
			txn := &txns[i]
			if full {
				if err := validateTransaction(txn); err != nil {
					return fmt.Errorf("%s %d: %w", kind, i, err)
				}
			} else if txn.ID == "" {
				return fmt.Errorf("%w: %s %d has no ID", ErrInvalidBatch, kind, i)
			}
			if seen[txn.ID] {
				return fmt.Errorf("%w: transaction %s appears twice", ErrInvalidBatch, txn.ID)
			}
			seen[txn.ID] = true
		}
		return nil
	}

	if err := check("insert", batch.Inserts, true); err != nil {
		return err
	}
	if err := check("update", batch.Updates, true); err != nil {
		return err
	}
	if err := check("delete", batch.Deletes, false); err != nil {
		return err
	}

	for i, txn := range batch.RequireUnchanged {
		if txn.ID == "" {
			return fmt.Errorf("%w: guard %d has no ID", ErrInvalidBatch, i)
		}
	}
	for i, id := range batch.RequireNoRefunds {
		if id == "" {
			return fmt.Errorf("%w: refund guard %d has no ID", ErrInvalidBatch, i)
		}
	}
	return nil
}
