package testutil

import (
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// FixtureDate is the date every fixture transaction gets unless overridden.
var FixtureDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

// Option customizes a fixture transaction.
type Option func(*model.Transaction)

// WithAccount sets the account id.
func WithAccount(accountID string) Option {
	return func(t *model.Transaction) { t.AccountID = accountID }
}

// WithDescription sets the description.
func WithDescription(description string) Option {
	return func(t *model.Transaction) { t.Description = description }
}

// WithDate sets the transaction date.
func WithDate(date time.Time) Option {
	return func(t *model.Transaction) { t.Date = date }
}

// WithCategory sets the category.
func WithCategory(category string) Option {
	return func(t *model.Transaction) { t.Category = category }
}

// WithTags sets the tags.
func WithTags(tags ...string) Option {
	return func(t *model.Transaction) { t.Tags = tags }
}

// Debit builds an unrelated debit fixture.
func Debit(id string, amount float64, opts ...Option) model.Transaction {
	return newTransaction(id, model.DirectionDebit, amount, opts)
}

// Credit builds an unrelated credit fixture.
func Credit(id string, amount float64, opts ...Option) model.Transaction {
	return newTransaction(id, model.DirectionCredit, amount, opts)
}

func newTransaction(id string, direction model.Direction, amount float64, opts []Option) model.Transaction {
	txn := model.Transaction{
		ID:          id,
		Date:        FixtureDate,
		AccountID:   "checking",
		Direction:   direction,
		Amount:      amount,
		Description: "fixture " + id,
	}
	for _, opt := range opts {
		opt(&txn)
	}
	txn.Hash = txn.GenerateHash()
	return txn
}
