// Package ofx imports OFX/QFX bank and credit card statements as base ledger records.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/Veraticus/spice-ledger/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags missing their closing bracket at end of line.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

var descriptionPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

var genericDescriptions = map[string]bool{
	"DEBIT":           true,
	"CREDIT":          true,
	"PURCHASE":        true,
	"PAYMENT":         true,
	"POS TRANSACTION": true,
	"CARD PURCHASE":   true,
}

// Parser converts OFX statements into ledger transactions.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

// statement is one account's transaction list, bank or credit card.
type statement struct {
	accountID    string
	transactions []ofxgo.Transaction
}

// preprocessOFX fixes common formatting issues in bank-exported files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

func (p *Parser) readStatements(reader io.Reader) ([]statement, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var stmts []statement
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			s := statement{accountID: string(stmt.BankAcctFrom.AcctID)}
			if stmt.BankTranList != nil {
				s.transactions = stmt.BankTranList.Transactions
			}
			stmts = append(stmts, s)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			s := statement{accountID: string(stmt.CCAcctFrom.AcctID)}
			if stmt.BankTranList != nil {
				s.transactions = stmt.BankTranList.Transactions
			}
			stmts = append(stmts, s)
		}
	}
	return stmts, nil
}

// ParseFile parses an OFX/QFX file into unrelated ledger transactions.
// Negative OFX amounts become debits, everything else a credit.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.Transaction, error) {
	stmts, err := p.readStatements(reader)
	if err != nil {
		return nil, err
	}

	var transactions []model.Transaction
	for _, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if stmt.accountID == "" {
			slog.Warn("Skipping OFX statement without account id", "transactions", len(stmt.transactions))
			continue
		}
		for _, ofxTx := range stmt.transactions {
			transactions = append(transactions, p.convertTransaction(ofxTx, stmt.accountID))
		}
	}

	slog.Info("Parsed OFX file",
		"total_transactions", len(transactions),
		"statements", len(stmts))

	return transactions, nil
}

// convertTransaction converts an OFX transaction to a ledger record.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, accountID string) model.Transaction {
	amount, _ := ofxTx.TrnAmt.Float64()
	direction := model.DirectionCredit
	if amount < 0 {
		direction = model.DirectionDebit
		amount = -amount
	}

	tx := model.Transaction{
		ID:          string(ofxTx.FiTID),
		Date:        ofxTx.DtPosted.Time,
		Description: p.extractDescription(ofxTx),
		Amount:      amount,
		Direction:   direction,
		AccountID:   accountID,
	}

	var notes []string
	if ofxTx.CheckNum != "" {
		notes = append(notes, "check "+string(ofxTx.CheckNum))
	}
	if memo := strings.TrimSpace(string(ofxTx.Memo)); memo != "" && memo != tx.Description {
		notes = append(notes, memo)
	}
	tx.Notes = strings.Join(notes, "; ")

	// OFX carries no categories; a few transaction types imply one.
	switch ofxTx.TrnType {
	case ofxgo.TrnTypeInt, ofxgo.TrnTypeDiv:
		tx.Category = "Income"
		tx.Subcategory = "Interest"
	case ofxgo.TrnTypeFee, ofxgo.TrnTypeSrvChg:
		tx.Category = "Bank Fees"
	case ofxgo.TrnTypeATM:
		tx.Category = "Cash & ATM"
	}

	tx.Hash = tx.GenerateHash()
	return tx
}

// extractDescription picks the cleanest payee text from an OFX transaction.
func (p *Parser) extractDescription(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)
	if tx.Memo != "" && genericDescriptions[strings.ToUpper(strings.TrimSpace(name))] {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	for _, prefix := range descriptionPrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " posting dates.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

// GetAccounts returns the sorted account ids present in an OFX file.
func (p *Parser) GetAccounts(_ context.Context, reader io.Reader) ([]string, error) {
	stmts, err := p.readStatements(reader)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var accounts []string
	for _, stmt := range stmts {
		if stmt.accountID == "" || seen[stmt.accountID] {
			continue
		}
		seen[stmt.accountID] = true
		accounts = append(accounts, stmt.accountID)
	}
	sort.Strings(accounts)
	return accounts, nil
}
