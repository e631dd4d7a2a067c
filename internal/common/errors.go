// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Storage errors.
var (
	// ErrNotFound means a transaction or group id does not resolve to a live record.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a concurrent writer changed a record after it was read.
	// It is always safe to retry after a fresh read.
	ErrConflict = errors.New("concurrent modification")
)

// Relationship validation errors. Each is client-fixable and detected before any write.
var (
	ErrInvalidDirection        = errors.New("invalid direction")
	ErrAlreadyLinked           = errors.New("already in a relationship")
	ErrSelfReference           = errors.New("transaction cannot reference itself")
	ErrTooFewMembers           = errors.New("too few group members")
	ErrAmountMismatch          = errors.New("split amounts do not match original")
	ErrEmptySplit              = errors.New("split has no parts")
	ErrConflictingRelationship = errors.New("conflicting relationship")
	ErrRejectedField           = errors.New("field cannot be bulk updated")
	ErrUnknownGroup            = errors.New("unknown group")
)

// ErrInvalidConfig means a configuration value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

var validationErrors = []error{
	ErrInvalidDirection,
	ErrAlreadyLinked,
	ErrSelfReference,
	ErrTooFewMembers,
	ErrAmountMismatch,
	ErrEmptySplit,
	ErrConflictingRelationship,
	ErrRejectedField,
	ErrUnknownGroup,
}

// TransactionError names the transaction an operation failed on.
type TransactionError struct {
	Err           error
	TransactionID string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.TransactionID, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// NewTransactionError wraps err with the id of the offending transaction.
func NewTransactionError(id string, err error) error {
	return &TransactionError{TransactionID: id, Err: err}
}

// FailedTransactionID returns the id carried by err, if any.
func FailedTransactionID(err error) (string, bool) {
	var txnErr *TransactionError
	if errors.As(err, &txnErr) {
		return txnErr.TransactionID, true
	}
	return "", false
}

// IsValidation reports whether err is one of the relationship validation errors.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict reports whether err is a concurrent-write collision.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// IsRetryable determines if an error should trigger a retry.
// Validation and not-found errors never do; a retry would fail the same way.
func IsRetryable(err error) bool {
	if IsValidation(err) || errors.Is(err, ErrNotFound) {
		return false
	}
	if IsConflict(err) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
