package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// IssueSeverity grades an audit finding.
type IssueSeverity string

const (
	// SeverityHigh means relationship operations on the records will misbehave.
	SeverityHigh IssueSeverity = "high"
	// SeverityLow means the records resolve correctly but carry stale state.
	SeverityLow IssueSeverity = "low"
)

// IssueType names the relationship rule an audit finding breaks.
type IssueType string

const (
	// IssueDanglingRefund is a refund link whose parent is missing or deleted.
	IssueDanglingRefund IssueType = "dangling_refund"
	// IssueRefundFlag is an is_refund flag that disagrees with the link.
	IssueRefundFlag IssueType = "refund_flag"
	// IssueExclusiveMembership is a record in more than one relationship.
	IssueExclusiveMembership IssueType = "exclusive_membership"
	// IssueOrphanGroup is a group with a single live member.
	IssueOrphanGroup IssueType = "orphan_group"
	// IssueMultipleAnchors is a split group with more than one original.
	IssueMultipleAnchors IssueType = "multiple_anchors"
	// IssueSplitTotal is a split whose parts no longer add up to its original.
	IssueSplitTotal IssueType = "split_total"
)

// Issue is one audit finding.
type Issue struct {
	Type           IssueType
	Severity       IssueSeverity
	Description    string
	GroupID        string
	TransactionIDs []string
	// Fixable issues can be repaired with a relationship operation.
	Fixable bool
}

// AuditReport lists every finding of a ledger audit.
type AuditReport struct {
	Issues       []Issue
	Transactions int
	RefundLinks  int
	Groups       int
}

// Clean reports whether the audit found nothing.
func (r *AuditReport) Clean() bool {
	return len(r.Issues) == 0
}

// AuditLedger checks the relationship rules across txns, which must include
// deleted records so dangling references can be told from unknown ones.
func (e *Engine) AuditLedger(txns []model.Transaction) *AuditReport {
	byID := make(map[string]model.Transaction, len(txns))
	groups := make(map[string][]model.Transaction)
	refunded := make(map[string]bool)
	report := &AuditReport{}

	for _, txn := range txns {
		byID[txn.ID] = txn
		if !txn.IsLive() {
			continue
		}
		report.Transactions++
		if txn.GroupID != "" {
			groups[txn.GroupID] = append(groups[txn.GroupID], txn)
		}
		if txn.LinkParentID != "" {
			refunded[txn.LinkParentID] = true
		}
	}

	for _, txn := range txns {
		if !txn.IsLive() {
			continue
		}
		report.Issues = append(report.Issues, e.auditRecord(txn, byID)...)
		if refunded[txn.ID] && txn.GroupID != "" {
			report.Issues = append(report.Issues, Issue{
				Type:           IssueExclusiveMembership,
				Severity:       SeverityHigh,
				Description:    fmt.Sprintf("%s has refunds linked to it and belongs to group %s", txn.ID, txn.GroupID),
				GroupID:        txn.GroupID,
				TransactionIDs: []string{txn.ID},
			})
		}
		if txn.LinkParentID != "" {
			report.RefundLinks++
		}
	}

	groupIDs := make([]string, 0, len(groups))
	for id := range groups {
		groupIDs = append(groupIDs, id)
	}
	sort.Strings(groupIDs)
	report.Groups = len(groupIDs)

	for _, id := range groupIDs {
		report.Issues = append(report.Issues, e.auditGroup(id, groups[id])...)
	}

	return report
}

func (e *Engine) auditRecord(txn model.Transaction, byID map[string]model.Transaction) []Issue {
	var issues []Issue

	if txn.LinkParentID != "" {
		if parent, ok := byID[txn.LinkParentID]; !ok || !parent.IsLive() {
			issues = append(issues, Issue{
				Type:           IssueDanglingRefund,
				Severity:       SeverityLow,
				Description:    fmt.Sprintf("%s refunds %s, which is missing or deleted", txn.ID, txn.LinkParentID),
				TransactionIDs: []string{txn.ID},
				Fixable:        true,
			})
		}
	}

	if txn.IsRefund != (txn.LinkParentID != "") {
		issues = append(issues, Issue{
			Type:           IssueRefundFlag,
			Severity:       SeverityLow,
			Description:    fmt.Sprintf("%s has is_refund=%t but link parent %q", txn.ID, txn.IsRefund, txn.LinkParentID),
			TransactionIDs: []string{txn.ID},
		})
	}

	// A stray refund flag alone is reported above.
	strayFlag := txn.IsRefund && txn.LinkParentID == "" && !(txn.IsSplit && txn.GroupID == "")
	if err := e.validator.ValidateExclusiveMembership(txn); err != nil && !strayFlag {
		issues = append(issues, Issue{
			Type:           IssueExclusiveMembership,
			Severity:       SeverityHigh,
			Description:    err.Error(),
			GroupID:        txn.GroupID,
			TransactionIDs: []string{txn.ID},
		})
	}

	return issues
}

func (e *Engine) auditGroup(groupID string, members []model.Transaction) []Issue {
	var issues []Issue
	memberIDs := ids(members)

	if len(members) < 2 {
		issues = append(issues, Issue{
			Type:           IssueOrphanGroup,
			Severity:       SeverityLow,
			Description:    fmt.Sprintf("group %s has a single live member", groupID),
			GroupID:        groupID,
			TransactionIDs: memberIDs,
			Fixable:        true,
		})
	}

	if model.GroupKind(members) != model.RelationshipSplit {
		return issues
	}

	var anchors, parts []model.Transaction
	for _, m := range members {
		if m.IsSplit {
			parts = append(parts, m)
		} else {
			anchors = append(anchors, m)
		}
	}

	switch {
	case len(anchors) > 1:
		issues = append(issues, Issue{
			Type:           IssueMultipleAnchors,
			Severity:       SeverityHigh,
			Description:    fmt.Sprintf("split %s has %d originals", groupID, len(anchors)),
			GroupID:        groupID,
			TransactionIDs: ids(anchors),
		})
	case len(anchors) == 1:
		splitParts := make([]model.SplitPart, len(parts))
		for i, p := range parts {
			splitParts[i] = model.SplitPart{Amount: p.Amount}
		}
		if err := e.validator.ValidateSplit(anchors[0], splitParts); err != nil {
			issues = append(issues, Issue{
				Type:           IssueSplitTotal,
				Severity:       SeverityHigh,
				Description:    err.Error(),
				GroupID:        groupID,
				TransactionIDs: memberIDs,
			})
		}
	}

	return issues
}

// FixIssue repairs a fixable finding with the matching relationship operation:
// dangling refund links are unlinked and orphan groups are dissolved.
func (e *Engine) FixIssue(ctx context.Context, issue Issue) error {
	if !issue.Fixable {
		return fmt.Errorf("%s issue cannot be fixed automatically", issue.Type)
	}

	switch issue.Type {
	case IssueDanglingRefund:
		_, err := e.UnlinkRefund(ctx, issue.TransactionIDs[0])
		return err
	case IssueOrphanGroup:
		members, err := e.store.GetGroupMembers(ctx, issue.GroupID)
		if err != nil {
			return err
		}
		released := make([]model.Transaction, 0, len(members))
		for _, m := range members {
			c := m.Clone()
			c.GroupID = ""
			c.IsSplit = false
			released = append(released, c)
		}
		if len(released) == 0 {
			return nil
		}
		_, err = e.commit(ctx, service.Batch{Updates: released})
		if err == nil {
			common.LogInfo(ctx, "Dissolved orphan group", common.Fields{"group_id": issue.GroupID})
		}
		return err
	default:
		return fmt.Errorf("%s issue cannot be fixed automatically", issue.Type)
	}
}
