package model

import "time"

// BulkField names a field that may be assigned across many transactions at once.
type BulkField string

// Bulk-editable fields. Relationship-bearing fields are deliberately absent.
const (
	BulkFieldDate           BulkField = "date"
	BulkFieldAmount         BulkField = "amount"
	BulkFieldDirection      BulkField = "direction"
	BulkFieldAccount        BulkField = "account_id"
	BulkFieldDescription    BulkField = "description"
	BulkFieldCategory       BulkField = "category"
	BulkFieldSubcategory    BulkField = "subcategory"
	BulkFieldNotes          BulkField = "notes"
	BulkFieldTags           BulkField = "tags"
	BulkFieldAddTags        BulkField = "add_tags"
	BulkFieldRemoveTags     BulkField = "remove_tags"
	BulkFieldSplitBreakdown BulkField = "split_breakdown"
)

// BulkFields lists every field accepted by a bulk update, in display order.
var BulkFields = []BulkField{
	BulkFieldDate,
	BulkFieldAmount,
	BulkFieldDirection,
	BulkFieldAccount,
	BulkFieldDescription,
	BulkFieldCategory,
	BulkFieldSubcategory,
	BulkFieldNotes,
	BulkFieldTags,
	BulkFieldAddTags,
	BulkFieldRemoveTags,
	BulkFieldSplitBreakdown,
}

// RelationshipFields are the fields only the relationship operations may write.
var RelationshipFields = []string{"link_parent_id", "transaction_group_id", "is_split"}

// BulkUpdate is the closed set of changes applied by a bulk update.
// A nil pointer leaves the field untouched.
type BulkUpdate struct {
	Date           *time.Time
	Amount         *float64
	Direction      *Direction
	AccountID      *string
	Description    *string
	Category       *string
	Subcategory    *string
	Notes          *string
	Tags           *[]string
	SplitBreakdown *SplitBreakdown
	AddTags        []string
	RemoveTags     []string
	// ClearSplitBreakdown removes any breakdown and share amount.
	ClearSplitBreakdown bool
}

// IsEmpty reports whether the update changes nothing.
func (u BulkUpdate) IsEmpty() bool {
	return u.Date == nil && u.Amount == nil && u.Direction == nil &&
		u.AccountID == nil && u.Description == nil && u.Category == nil &&
		u.Subcategory == nil && u.Notes == nil && u.Tags == nil &&
		u.SplitBreakdown == nil && len(u.AddTags) == 0 && len(u.RemoveTags) == 0 &&
		!u.ClearSplitBreakdown
}

// ChangesAmountOrDirection reports whether the update could break amount or
// direction rules of an existing relationship.
func (u BulkUpdate) ChangesAmountOrDirection() bool {
	return u.Amount != nil || u.Direction != nil
}

// CategoryNames returns the category names the update references.
func (u BulkUpdate) CategoryNames() []string {
	var names []string
	if u.Category != nil && *u.Category != "" {
		names = append(names, *u.Category)
	}
	if u.Subcategory != nil && *u.Subcategory != "" {
		names = append(names, *u.Subcategory)
	}
	return names
}

// TagNames returns the tag names the update references.
func (u BulkUpdate) TagNames() []string {
	var names []string
	if u.Tags != nil {
		names = append(names, *u.Tags...)
	}
	return append(names, u.AddTags...)
}

// Apply writes the update onto txn.
func (u BulkUpdate) Apply(txn *Transaction) {
	if u.Date != nil {
		txn.Date = *u.Date
	}
	if u.Amount != nil {
		txn.Amount = *u.Amount
	}
	if u.Direction != nil {
		txn.Direction = *u.Direction
	}
	if u.AccountID != nil {
		txn.AccountID = *u.AccountID
	}
	if u.Description != nil {
		txn.Description = *u.Description
	}
	if u.Category != nil {
		txn.Category = *u.Category
	}
	if u.Subcategory != nil {
		txn.Subcategory = *u.Subcategory
	}
	if u.Notes != nil {
		txn.Notes = *u.Notes
	}
	if u.Tags != nil {
		txn.Tags = uniqueStrings(*u.Tags)
	}
	for _, tag := range u.AddTags {
		if !txn.HasTag(tag) {
			txn.Tags = append(txn.Tags, tag)
		}
	}
	if len(u.RemoveTags) > 0 {
		kept := txn.Tags[:0]
		for _, tag := range txn.Tags {
			if !containsString(u.RemoveTags, tag) {
				kept = append(kept, tag)
			}
		}
		txn.Tags = kept
	}

	switch {
	case u.ClearSplitBreakdown:
		txn.SplitBreakdown = nil
		txn.SplitShareAmount = nil
	case u.SplitBreakdown != nil:
		b := u.SplitBreakdown.Clone()
		txn.SplitBreakdown = &b
	}
	// The share follows the amount, so recompute whenever either changed.
	if txn.SplitBreakdown != nil {
		share := txn.SplitBreakdown.OwnerShare(txn.Amount)
		txn.SplitShareAmount = &share
	}
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !containsString(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
