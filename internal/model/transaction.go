// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Direction indicates whether money left (debit) or entered (credit) an account.
type Direction string

const (
	// DirectionDebit is money leaving the account.
	DirectionDebit Direction = "debit"
	// DirectionCredit is money entering the account.
	DirectionCredit Direction = "credit"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionDebit || d == DirectionCredit
}


// Transaction is the ledger's unit of record.
type Transaction struct {
	Date           time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SplitBreakdown *SplitBreakdown
	// SplitShareAmount is the owner's share when SplitBreakdown is present.
	SplitShareAmount *float64
	ID               string
	Hash             string
	Direction        Direction
	AccountID        string
	Description      string
	Category         string
	Subcategory      string
	Notes            string
	// LinkParentID references the debit this credit refunds.
	LinkParentID string
	// GroupID is shared by every leg of a transfer or every part of a split.
	GroupID string
	Tags    []string
	// Amount is always positive; the sign is implied by Direction.
	Amount float64
	// Version is bumped by the store on every successful write.
	Version   int64
	IsRefund  bool
	IsSplit   bool
	IsDeleted bool
}

// SignedAmount returns the amount with credits positive and debits negative.
func (t *Transaction) SignedAmount() float64 {
	if t.Direction == DirectionDebit {
		return -t.Amount
	}
	return t.Amount
}

// IsLive reports whether the transaction takes part in relationship resolution.
func (t *Transaction) IsLive() bool {
	return !t.IsDeleted
}

// HasRelationshipFields reports whether any relationship-bearing field is set.
func (t *Transaction) HasRelationshipFields() bool {
	return t.LinkParentID != "" || t.GroupID != "" || t.IsSplit
}

// IsSplitAnchor reports whether this is the restorable original of a split group.
// A transfer leg looks the same from a single record, so callers must check the group.
func (t *Transaction) IsSplitAnchor() bool {
	return t.GroupID != "" && !t.IsSplit
}

// HasTag reports whether the transaction carries the named tag.
func (t *Transaction) HasTag(name string) bool {
	for _, tag := range t.Tags {
		if tag == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (t *Transaction) Clone() Transaction {
	c := *t
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.SplitBreakdown != nil {
		b := t.SplitBreakdown.Clone()
		c.SplitBreakdown = &b
	}
	if t.SplitShareAmount != nil {
		v := *t.SplitShareAmount
		c.SplitShareAmount = &v
	}
	return c
}

// GenerateHash creates a hash for duplicate detection on import.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%.2f:%s:%s:%s",
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.Direction,
		t.Description,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
