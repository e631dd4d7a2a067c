package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStorage_CreateCategory(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	cat, err := store.CreateCategory(ctx, "  Groceries ")
	require.NoError(t, err)
	require.NotNil(t, cat)
	assert.Equal(t, "Groceries", cat.Name)
	assert.True(t, cat.IsActive)

	// Creating again returns the same row.
	again, err := store.CreateCategory(ctx, "Groceries")
	require.NoError(t, err)
	assert.Equal(t, cat.ID, again.ID)

	_, err = store.CreateCategory(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestSQLiteStorage_CreateCategoryReactivates(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	cat, err := store.CreateCategory(ctx, "Travel")
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, `UPDATE categories SET is_active = 0 WHERE id = ?`, cat.ID)
	require.NoError(t, err)

	missing, err := store.GetCategoryByName(ctx, "Travel")
	require.NoError(t, err)
	assert.Nil(t, missing)

	revived, err := store.CreateCategory(ctx, "Travel")
	require.NoError(t, err)
	require.NotNil(t, revived)
	assert.Equal(t, cat.ID, revived.ID)
}

func TestSQLiteStorage_GetCategoriesSorted(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	for _, name := range []string{"Utilities", "Dining", "Rent"} {
		_, err := store.CreateCategory(ctx, name)
		require.NoError(t, err)
	}

	categories, err := store.GetCategories(ctx)
	require.NoError(t, err)

	var names []string
	for _, c := range categories {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Dining", "Rent", "Utilities"}, names)
}
