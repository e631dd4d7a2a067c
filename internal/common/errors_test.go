package common

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransactionError(t *testing.T) {
	err := NewTransactionError("t1", fmt.Errorf("%w: t1 is a debit", ErrInvalidDirection))

	assert.Equal(t, "transaction t1: invalid direction: t1 is a debit", err.Error())
	assert.ErrorIs(t, err, ErrInvalidDirection)

	id, ok := FailedTransactionID(fmt.Errorf("bulk update: %w", err))
	assert.True(t, ok)
	assert.Equal(t, "t1", id)

	_, ok = FailedTransactionID(ErrNotFound)
	assert.False(t, ok)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err        error
		name       string
		validation bool
		conflict   bool
		retryable  bool
	}{
		{name: "already linked", err: NewTransactionError("t", ErrAlreadyLinked), validation: true},
		{name: "unknown group", err: ErrUnknownGroup, validation: true},
		{name: "not found", err: NewTransactionError("t", ErrNotFound)},
		{name: "conflict", err: NewTransactionError("t", ErrConflict), conflict: true, retryable: true},
		{name: "deadline", err: context.DeadlineExceeded, retryable: true},
		{name: "canceled", err: context.Canceled},
		{name: "marked retryable", err: &RetryableError{Err: errors.New("busy"), Retryable: true}, retryable: true},
		{name: "plain", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.conflict, IsConflict(tt.err))
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
		})
	}
}

func TestUserError(t *testing.T) {
	err := NewUserError("run 'ledger show t1'", ErrAlreadyLinked)
	assert.Equal(t, "run 'ledger show t1': already in a relationship", err.Error())
	assert.ErrorIs(t, err, ErrAlreadyLinked)

	assert.Equal(t, "just text", NewUserError("just text", nil).Error())
}
