package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundledger/internal/config"
	"fundledger/internal/core"
	"fundledger/internal/storage"
)

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSeed_EmptyStore(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	owner, err := Seed(ctx, store, Params{
		OwnerExternalID:   42,
		IncomeCategories:  []string{"Sales", " Grants "},
		ExpenseCategories: []string{"Rent"},
	})
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, core.RoleOwner, owner.Role)
	assert.Equal(t, "Owner", owner.Name)
	assert.Equal(t, int64(42), owner.ExternalID)

	repo := store.Repository()
	income, err := repo.ListCategories(ctx, core.KindIncome)
	require.NoError(t, err)
	assert.Len(t, income, 2)
	expense, err := repo.ListCategories(ctx, core.KindExpense)
	require.NoError(t, err)
	assert.Len(t, expense, 1)
}

func TestSeed_Idempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p := Params{OwnerExternalID: 42, OwnerName: "Boss", ExpenseCategories: []string{"Rent"}}

	_, err := Seed(ctx, store, p)
	require.NoError(t, err)

	p.OwnerExternalID = 43
	p.ExpenseCategories = []string{"Rent", "Fuel"}
	owner, err := Seed(ctx, store, p)
	require.NoError(t, err)
	assert.Nil(t, owner)

	repo := store.Repository()
	n, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	expense, err := repo.ListCategories(ctx, core.KindExpense)
	require.NoError(t, err)
	assert.Len(t, expense, 2)
}

func TestSeed_InvalidOwnerRollsBack(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := Seed(ctx, store, Params{OwnerExternalID: 0, IncomeCategories: []string{"Sales"}})
	require.ErrorIs(t, err, core.ErrInvalidExternalID)

	cats, err := store.Repository().ListCategories(ctx, core.KindIncome)
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func TestParamsFromConfig(t *testing.T) {
	cfg := &config.Config{
		OwnerExternalID:          7,
		OwnerName:                "Owner",
		DefaultIncomeCategories:  []string{"Sales"},
		DefaultExpenseCategories: []string{"Rent", "Fuel"},
	}
	p := ParamsFromConfig(cfg)
	assert.Equal(t, int64(7), p.OwnerExternalID)
	assert.Equal(t, []string{"Rent", "Fuel"}, p.ExpenseCategories)
}
