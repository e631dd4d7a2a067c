package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/spice-ledger/internal/engine"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/storage"
)

// FormatAmount renders a signed amount, debits negative.
func FormatAmount(txn model.Transaction) string {
	text := fmt.Sprintf("%10.2f", txn.SignedAmount())
	if txn.Direction == model.DirectionDebit {
		return DebitStyle.Render(text)
	}
	return CreditStyle.Render(text)
}

// FormatTransactionLine renders one transaction as a single table row.
func FormatTransactionLine(txn model.Transaction) string {
	category := txn.Category
	if txn.Subcategory != "" {
		category += "/" + txn.Subcategory
	}

	line := fmt.Sprintf("%-36s  %s  %s  %-12s  %-28s  %-20s %s",
		txn.ID,
		txn.Date.Format("2006-01-02"),
		FormatAmount(txn),
		truncate(txn.AccountID, 12),
		truncate(txn.Description, 28),
		truncate(category, 20),
		relationshipMarker(txn))

	if txn.IsDeleted {
		return SubtleStyle.Render(strings.TrimRight(line, " ") + " (deleted)")
	}
	return strings.TrimRight(line, " ")
}

// RenderTransactions writes a table of transactions.
func RenderTransactions(w io.Writer, txns []model.Transaction) error {
	if len(txns) == 0 {
		_, err := fmt.Fprintln(w, SubtleStyle.Render("No transactions."))
		return err
	}

	header := fmt.Sprintf("%-36s  %-10s  %10s  %-12s  %-28s  %-20s",
		"ID", "DATE", "AMOUNT", "ACCOUNT", "DESCRIPTION", "CATEGORY")
	if _, err := fmt.Fprintln(w, TableHeaderStyle.Render(header)); err != nil {
		return err
	}
	for _, txn := range txns {
		if _, err := fmt.Fprintln(w, FormatTransactionLine(txn)); err != nil {
			return err
		}
	}
	return nil
}

// RenderRelationships writes the resolved relationships of one transaction.
func RenderRelationships(w io.Writer, rel *model.Relationships) error {
	var b strings.Builder

	b.WriteString(FormatTransactionLine(rel.Self) + "\n")
	if len(rel.Self.Tags) > 0 {
		b.WriteString(SubtleStyle.Render("tags: "+strings.Join(rel.Self.Tags, ", ")) + "\n")
	}
	if rel.Self.Notes != "" {
		b.WriteString(SubtleStyle.Render("notes: "+rel.Self.Notes) + "\n")
	}
	if rel.Self.SplitBreakdown != nil && rel.Self.SplitShareAmount != nil {
		b.WriteString(SubtleStyle.Render(fmt.Sprintf("shared %s with %s, your share %.2f",
			rel.Self.SplitBreakdown.Mode,
			strings.Join(rel.Self.SplitBreakdown.Participants, ", "),
			*rel.Self.SplitShareAmount)) + "\n")
	}

	b.WriteString("\n" + BoldStyle.Render("Relationship: ") + string(rel.Kind) + "\n")

	switch rel.Kind {
	case model.RelationshipRefund:
		if rel.Parent != nil {
			b.WriteString(LinkIcon + " refunds\n  " + FormatTransactionLine(*rel.Parent) + "\n")
		}
		if len(rel.Children) > 0 {
			b.WriteString(LinkIcon + " refunded by\n")
			for _, c := range rel.Children {
				b.WriteString("  " + FormatTransactionLine(c) + "\n")
			}
		}
	case model.RelationshipTransfer, model.RelationshipSplit:
		icon := TransferIcon
		if rel.Kind == model.RelationshipSplit {
			icon = SplitIcon
		}
		fmt.Fprintf(&b, "%s group %s\n", icon, rel.Self.GroupID)
		for _, m := range rel.GroupMembers {
			b.WriteString("  " + FormatTransactionLine(m) + "\n")
		}
	}

	_, err := fmt.Fprint(w, RenderBox(rel.Self.Description, strings.TrimRight(b.String(), "\n"))+"\n")
	return err
}

// FormatAdvisory renders a transfer advisory, or "" when there is nothing to say.
func FormatAdvisory(adv model.Advisory) string {
	switch adv.Level {
	case model.AdvisoryWarning:
		return FormatWarning(adv.Message)
	case model.AdvisoryNotice:
		return FormatInfo(adv.Message)
	default:
		return ""
	}
}

// RenderSnapshots writes a snapshot listing, newest first.
func RenderSnapshots(w io.Writer, snapshots []storage.SnapshotInfo) error {
	if len(snapshots) == 0 {
		_, err := fmt.Fprintln(w, SubtleStyle.Render("No snapshots."))
		return err
	}

	header := fmt.Sprintf("%-40s  %-19s  %8s  %6s  %6s  %6s  %s",
		"ID", "CREATED", "TXNS", "LINKS", "GROUPS", "PARTS", "DESCRIPTION")
	if _, err := fmt.Fprintln(w, TableHeaderStyle.Render(header)); err != nil {
		return err
	}
	for _, s := range snapshots {
		id := s.ID
		if s.IsAuto {
			id = SubtleStyle.Render(fmt.Sprintf("%-40s", id))
		} else {
			id = fmt.Sprintf("%-40s", id)
		}
		if _, err := fmt.Fprintf(w, "%s  %-19s  %8d  %6d  %6d  %6d  %s\n",
			id,
			s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			s.Transactions, s.RefundLinks, s.Groups, s.SplitParts,
			s.Description); err != nil {
			return err
		}
	}
	return nil
}

// RenderAudit writes the findings of a ledger audit, most severe first.
func RenderAudit(w io.Writer, report *engine.AuditReport) error {
	summary := fmt.Sprintf("%d transactions, %d refund links, %d groups",
		report.Transactions, report.RefundLinks, report.Groups)
	if report.Clean() {
		_, err := fmt.Fprintln(w, FormatSuccess("No issues found ("+summary+")"))
		return err
	}

	if _, err := fmt.Fprintln(w, FormatTitle(fmt.Sprintf("%d issues", len(report.Issues)))+"  "+SubtleStyle.Render(summary)); err != nil {
		return err
	}
	for _, severity := range []engine.IssueSeverity{engine.SeverityHigh, engine.SeverityLow} {
		for _, issue := range report.Issues {
			if issue.Severity != severity {
				continue
			}
			if _, err := fmt.Fprintln(w, formatIssue(issue)); err != nil {
				return err
			}
		}
	}
	return nil
}

func formatIssue(issue engine.Issue) string {
	line := fmt.Sprintf("[%s] %s", issue.Type, issue.Description)
	if issue.Fixable {
		line += SubtleStyle.Render(" (fixable)")
	}
	if issue.Severity == engine.SeverityHigh {
		return ErrorStyle.Render(ErrorIcon+" ") + line
	}
	return WarningStyle.Render(WarningIcon+" ") + line
}

func relationshipMarker(txn model.Transaction) string {
	switch {
	case txn.LinkParentID != "":
		return LinkIcon
	case txn.IsSplit:
		return SplitIcon
	case txn.GroupID != "":
		return TransferIcon
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
