// Package bootstrap seeds an empty ledger with its owner and default
// categories.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"fundledger/internal/config"
	"fundledger/internal/core"
	"fundledger/internal/storage"
)

type Store interface {
	InTx(ctx context.Context, fn func(*storage.Repository) error) error
}

type Params struct {
	OwnerExternalID   int64
	OwnerName         string
	IncomeCategories  []string
	ExpenseCategories []string
}

func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		OwnerExternalID:   cfg.OwnerExternalID,
		OwnerName:         cfg.OwnerName,
		IncomeCategories:  cfg.DefaultIncomeCategories,
		ExpenseCategories: cfg.DefaultExpenseCategories,
	}
}

// Seed creates the owner when the users table is empty and makes sure every
// default category exists. It is safe to run on every start. The returned
// owner is nil when users already existed.
func Seed(ctx context.Context, store Store, p Params) (*core.User, error) {
	if p.OwnerName == "" {
		p.OwnerName = "Owner"
	}

	var owner *core.User
	err := store.InTx(ctx, func(repo *storage.Repository) error {
		n, err := repo.CountUsers(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			owner, err = repo.CreateUser(ctx, p.OwnerExternalID, p.OwnerName, core.RoleOwner)
			if err != nil {
				return fmt.Errorf("create owner: %w", err)
			}
			slog.InfoContext(ctx, "Created initial owner user", "external_id", p.OwnerExternalID)
		}
		return repo.EnsureDefaultCategories(ctx, p.IncomeCategories, p.ExpenseCategories)
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return owner, nil
}
