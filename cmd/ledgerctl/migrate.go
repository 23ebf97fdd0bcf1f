package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fundledger/internal/bootstrap"
	"fundledger/internal/cli"
	"fundledger/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  `Bring the SQLite schema at SQLITE_DB_PATH up to date and print its version.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cli.LoadConfig()
			if err != nil {
				return err
			}
			store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			store.Close()

			version, dirty, err := storage.SchemaVersion(cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	}
}

func bootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the owner and default categories",
		Long: `Create the owner from OWNER_EXTERNAL_ID when no users exist, then make sure
every category in DEFAULT_INCOME_CATEGORIES and DEFAULT_EXPENSE_CATEGORIES exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cli.LoadConfig()
			if err != nil {
				return err
			}
			store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			owner, err := bootstrap.Seed(cmd.Context(), store, bootstrap.ParamsFromConfig(cfg))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if owner != nil {
				fmt.Fprintf(out, "Created owner %s (external id %d)\n", owner.Name, owner.ExternalID)
			} else {
				fmt.Fprintln(out, "Users already exist; owner unchanged")
			}
			fmt.Fprintln(out, "Default categories ensured")
			return nil
		},
	}
}
