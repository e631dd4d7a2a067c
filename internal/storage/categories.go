package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/model"
)

// GetCategories returns all active categories.
func (s *SQLiteStorage) GetCategories(ctx context.Context) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, is_active
		FROM categories
		WHERE is_active = 1
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		var cat model.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.CreatedAt, &cat.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating categories: %w", err)
	}

	slog.Debug("retrieved categories", "count", len(categories))
	return categories, nil
}

// GetCategoryByName returns an active category by name, or nil if there is none.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	var cat model.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at, is_active
		FROM categories
		WHERE name = ? AND is_active = 1`, name).Scan(
		&cat.ID, &cat.Name, &cat.CreatedAt, &cat.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query category: %w", err)
	}

	return &cat, nil
}

// CreateCategory creates a category, reactivating it if it was retired.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	if err := s.withTx(ctx, func(tx *sql.Tx) error {
		return s.ensureCategoriesTx(ctx, tx, []string{name}, s.now())
	}); err != nil {
		return nil, err
	}

	return s.GetCategoryByName(ctx, strings.TrimSpace(name))
}

// ensureCategoriesTx gets or creates each named category inside tx.
func (s *SQLiteStorage) ensureCategoriesTx(ctx context.Context, q queryable, names []string, now time.Time) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		result, err := q.ExecContext(ctx, `
			INSERT OR IGNORE INTO categories (name, created_at, is_active)
			VALUES (?, ?, 1)`, name, now)
		if err != nil {
			return fmt.Errorf("failed to create category %q: %w", name, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			slog.Info("created new category", "name", name)
			continue
		}

		result, err = q.ExecContext(ctx,
			`UPDATE categories SET is_active = 1 WHERE name = ? AND is_active = 0`, name)
		if err != nil {
			return fmt.Errorf("failed to reactivate category %q: %w", name, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			slog.Info("reactivated existing category", "name", name)
		}
	}
	return nil
}

// GetTags returns all known tags.
func (s *SQLiteStorage) GetTags(ctx context.Context) ([]model.Tag, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tags []model.Tag
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	return tags, rows.Err()
}

func (s *SQLiteStorage) ensureTagsTx(ctx context.Context, q queryable, names []string, now time.Time) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		result, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO tags (name, created_at) VALUES (?, ?)`, name, now)
		if err != nil {
			return fmt.Errorf("failed to create tag %q: %w", name, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			slog.Info("created new tag", "name", name)
		}
	}
	return nil
}
