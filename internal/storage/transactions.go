package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

const transactionColumns = `
	id, hash, date, amount, direction, account_id, description,
	category, subcategory, tags, notes, link_parent_id, is_refund,
	transaction_group_id, is_split, split_breakdown, split_share_amount,
	is_deleted, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (model.Transaction, error) {
	var (
		txn        model.Transaction
		direction  string
		tagsJSON   string
		breakdown  sql.NullString
		shareValue sql.NullFloat64
	)

	err := row.Scan(
		&txn.ID,
		&txn.Hash,
		&txn.Date,
		&txn.Amount,
		&direction,
		&txn.AccountID,
		&txn.Description,
		&txn.Category,
		&txn.Subcategory,
		&tagsJSON,
		&txn.Notes,
		&txn.LinkParentID,
		&txn.IsRefund,
		&txn.GroupID,
		&txn.IsSplit,
		&breakdown,
		&shareValue,
		&txn.IsDeleted,
		&txn.Version,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return txn, err
	}

	txn.Direction = model.Direction(direction)

	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &txn.Tags); err != nil {
			// Log but don't fail on JSON parse error
			slog.Warn("Failed to parse tags JSON", "transaction_id", txn.ID, "error", err)
		}
	}
	if len(txn.Tags) == 0 {
		txn.Tags = nil
	}

	if breakdown.Valid && breakdown.String != "" {
		var b model.SplitBreakdown
		if err := json.Unmarshal([]byte(breakdown.String), &b); err != nil {
			return txn, fmt.Errorf("failed to parse split breakdown for %s: %w", txn.ID, err)
		}
		txn.SplitBreakdown = &b
	}
	if shareValue.Valid {
		v := shareValue.Float64
		txn.SplitShareAmount = &v
	}

	return txn, nil
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// encodeFields converts the JSON-backed and nullable columns of txn.
func encodeFields(txn model.Transaction) (tags string, breakdown, share any, err error) {
	tagList := txn.Tags
	if tagList == nil {
		tagList = []string{}
	}
	tagBytes, err := json.Marshal(tagList)
	if err != nil {
		return "", nil, nil, fmt.Errorf("failed to encode tags: %w", err)
	}

	if txn.SplitBreakdown != nil {
		b, err := json.Marshal(txn.SplitBreakdown)
		if err != nil {
			return "", nil, nil, fmt.Errorf("failed to encode split breakdown: %w", err)
		}
		breakdown = string(b)
	}
	if txn.SplitShareAmount != nil {
		share = *txn.SplitShareAmount
	}

	return string(tagBytes), breakdown, share, nil
}

// SaveTransactions saves new base transactions. Ids that already exist are skipped.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		for _, txn := range transactions {
			if txn.Hash == "" {
				txn.Hash = txn.GenerateHash()
			}
			if _, err := s.insertTransactionTx(ctx, tx, txn, now, true); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStorage) insertTransactionTx(ctx context.Context, q queryable, txn model.Transaction, now time.Time, ignoreExisting bool) (model.Transaction, error) {
	tags, breakdown, share, err := encodeFields(txn)
	if err != nil {
		return txn, err
	}

	verb := "INSERT"
	if ignoreExisting {
		verb = "INSERT OR IGNORE"
	}

	txn.Version = 1
	txn.CreatedAt = now
	txn.UpdatedAt = now

	_, err = q.ExecContext(ctx, verb+` INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.Hash,
		txn.Date,
		txn.Amount,
		string(txn.Direction),
		txn.AccountID,
		txn.Description,
		txn.Category,
		txn.Subcategory,
		tags,
		txn.Notes,
		txn.LinkParentID,
		txn.IsRefund,
		txn.GroupID,
		txn.IsSplit,
		breakdown,
		share,
		txn.IsDeleted,
		txn.Version,
		txn.CreatedAt,
		txn.UpdatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique) {
			return txn, common.NewTransactionError(txn.ID, fmt.Errorf("%w: id already exists", common.ErrConflict))
		}
		return txn, fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
	}

	return txn, nil
}

// updateTransactionTx writes txn only if the stored row still has txn.Version.
func (s *SQLiteStorage) updateTransactionTx(ctx context.Context, q queryable, txn model.Transaction, now time.Time) (model.Transaction, error) {
	tags, breakdown, share, err := encodeFields(txn)
	if err != nil {
		return txn, err
	}

	result, err := q.ExecContext(ctx, `
		UPDATE transactions SET
			date = ?, amount = ?, direction = ?, account_id = ?, description = ?,
			category = ?, subcategory = ?, tags = ?, notes = ?,
			link_parent_id = ?, is_refund = ?, transaction_group_id = ?, is_split = ?,
			split_breakdown = ?, split_share_amount = ?, is_deleted = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND is_deleted = 0`,
		txn.Date,
		txn.Amount,
		string(txn.Direction),
		txn.AccountID,
		txn.Description,
		txn.Category,
		txn.Subcategory,
		tags,
		txn.Notes,
		txn.LinkParentID,
		txn.IsRefund,
		txn.GroupID,
		txn.IsSplit,
		breakdown,
		share,
		txn.IsDeleted,
		now,
		txn.ID,
		txn.Version,
	)
	if err != nil {
		return txn, fmt.Errorf("failed to update transaction %s: %w", txn.ID, err)
	}

	if err := s.checkAffected(ctx, q, result, txn.ID); err != nil {
		return txn, err
	}

	txn.Version++
	txn.UpdatedAt = now
	return txn, nil
}

func (s *SQLiteStorage) deleteTransactionTx(ctx context.Context, q queryable, txn model.Transaction) error {
	result, err := q.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND version = ? AND is_deleted = 0`,
		txn.ID, txn.Version)
	if err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", txn.ID, err)
	}
	return s.checkAffected(ctx, q, result, txn.ID)
}

// checkAffected turns a conditional write that matched no row into a typed error.
func (s *SQLiteStorage) checkAffected(ctx context.Context, q queryable, result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 1 {
		return nil
	}

	var deleted bool
	err = q.QueryRowContext(ctx, `SELECT is_deleted FROM transactions WHERE id = ?`, id).Scan(&deleted)
	switch {
	case errors.Is(err, sql.ErrNoRows), err == nil && deleted:
		return common.NewTransactionError(id, common.ErrNotFound)
	case err != nil:
		return fmt.Errorf("failed to check transaction %s: %w", id, err)
	default:
		return common.NewTransactionError(id, common.ErrConflict)
	}
}

// checkGuardsTx fails with ErrConflict if a record the batch depends on moved
// since the caller read it, or if a refund now points at a guarded id.
func (s *SQLiteStorage) checkGuardsTx(ctx context.Context, q queryable, batch service.Batch) error {
	for _, txn := range batch.RequireUnchanged {
		var (
			version int64
			deleted bool
		)
		err := q.QueryRowContext(ctx,
			`SELECT version, is_deleted FROM transactions WHERE id = ?`, txn.ID).Scan(&version, &deleted)
		switch {
		case errors.Is(err, sql.ErrNoRows), err == nil && deleted:
			return common.NewTransactionError(txn.ID, common.ErrNotFound)
		case err != nil:
			return fmt.Errorf("failed to check transaction %s: %w", txn.ID, err)
		case version != txn.Version:
			return common.NewTransactionError(txn.ID, common.ErrConflict)
		}
	}

	for _, id := range batch.RequireNoRefunds {
		var linked bool
		err := q.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM transactions WHERE link_parent_id = ? AND is_deleted = 0
			)`, id).Scan(&linked)
		if err != nil {
			return fmt.Errorf("failed to check refunds of %s: %w", id, err)
		}
		if linked {
			return common.NewTransactionError(id, common.ErrConflict)
		}
	}
	return nil
}

// ApplyBatch commits every write in batch as one SQL transaction.
func (s *SQLiteStorage) ApplyBatch(ctx context.Context, batch service.Batch) (*service.BatchResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	result := &service.BatchResult{}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()

		if err := s.checkGuardsTx(ctx, tx, batch); err != nil {
			return err
		}

		if err := s.ensureCategoriesTx(ctx, tx, batch.Categories, now); err != nil {
			return err
		}
		if err := s.ensureTagsTx(ctx, tx, batch.Tags, now); err != nil {
			return err
		}

		for _, txn := range batch.Inserts {
			inserted, err := s.insertTransactionTx(ctx, tx, txn, now, false)
			if err != nil {
				return err
			}
			result.Inserted = append(result.Inserted, inserted)
		}

		for _, txn := range batch.Updates {
			updated, err := s.updateTransactionTx(ctx, tx, txn, now)
			if err != nil {
				return err
			}
			result.Updated = append(result.Updated, updated)
		}

		for _, txn := range batch.Deletes {
			if err := s.deleteTransactionTx(ctx, tx, txn); err != nil {
				return err
			}
			result.Deleted++
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("Applied batch",
		"inserted", len(result.Inserted),
		"updated", len(result.Updated),
		"deleted", result.Deleted)

	return result, nil
}

// GetTransaction retrieves a single transaction by ID.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewTransactionError(id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return &txn, nil
}

// GetTransactions retrieves the transactions that exist among ids, in input order.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, ids []string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	found, err := scanTransactions(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.Transaction, len(found))
	for _, txn := range found {
		byID[txn.ID] = txn
	}

	ordered := make([]model.Transaction, 0, len(found))
	for _, id := range ids {
		if txn, ok := byID[id]; ok {
			ordered = append(ordered, txn)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// GetGroupMembers returns the live transactions carrying groupID.
func (s *SQLiteStorage) GetGroupMembers(ctx context.Context, groupID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(groupID, "groupID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE transaction_group_id = ? AND is_deleted = 0
		ORDER BY is_split, date, id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

// GetRefundChildren returns the live transactions linked to parentID.
func (s *SQLiteStorage) GetRefundChildren(ctx context.Context, parentID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(parentID, "parentID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE link_parent_id = ? AND is_deleted = 0
		ORDER BY date, id`, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query refund children: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

// ListTransactions returns transactions matching filter, newest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, *filter.EndDate, *filter.StartDate)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1 = 1`
	var args []any

	if !filter.IncludeDeleted {
		query += " AND is_deleted = 0"
	}
	if filter.StartDate != nil {
		query += " AND date >= ?"
		args = append(args, *filter.StartDate)
	}
	if filter.EndDate != nil {
		query += " AND date <= ?"
		args = append(args, *filter.EndDate)
	}
	if filter.AccountID != "" {
		query += " AND account_id = ?"
		args = append(args, filter.AccountID)
	}

	query += " ORDER BY date DESC, id"

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTransactions(rows)
}

// SoftDeleteTransaction hides a transaction from relationship resolution.
func (s *SQLiteStorage) SoftDeleteTransaction(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET is_deleted = 1, version = version + 1, updated_at = ?
		WHERE id = ? AND is_deleted = 0`, s.now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return common.NewTransactionError(id, common.ErrNotFound)
	}

	slog.Info("Deleted transaction", "id", id)
	return nil
}

// ExistingHashes reports which of hashes already belong to a stored transaction.
func (s *SQLiteStorage) ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	existing := make(map[string]bool)
	if len(hashes) == 0 {
		return existing, nil
	}

	// Stay under SQLite's bound-parameter limit.
	const chunkSize = 500
	for start := 0; start < len(hashes); start += chunkSize {
		end := min(start+chunkSize, len(hashes))
		chunk := hashes[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, h := range chunk {
			args[i] = h
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT DISTINCT hash FROM transactions WHERE hash IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query hashes: %w", err)
		}
		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan hash: %w", err)
			}
			existing[h] = true
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	return existing, nil
}
