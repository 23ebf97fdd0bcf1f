package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fundledger/internal/cli"
	"fundledger/internal/config"
	"fundledger/internal/core"
	"fundledger/internal/log"
	"fundledger/internal/services"
	"fundledger/internal/storage"
)

var version = "dev"

type rootOptions struct {
	as       int64
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Administer a shared fund ledger",
		Long:          `ledgerctl posts operations, reports balances and manages users and categories of a shared fund ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cli.LoadEnvFile()
			level := opts.logLevel
			if level == "" {
				level = os.Getenv("LOG_LEVEL")
			}
			logger := cli.SetupLogger(level, log.ComponentCLI)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(log.NewContext(ctx, logger))
		},
	}

	cmd.PersistentFlags().Int64Var(&opts.as, "as", 0, "act as the user with this external id (default: OWNER_EXTERNAL_ID)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(migrateCmd())
	cmd.AddCommand(bootstrapCmd())
	cmd.AddCommand(balanceCmd(opts))
	cmd.AddCommand(postCmd(opts))
	cmd.AddCommand(historyCmd(opts))
	cmd.AddCommand(reportCmd(opts))
	cmd.AddCommand(usersCmd(opts))
	cmd.AddCommand(categoriesCmd(opts))

	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app is everything a ledger command needs, opened per invocation.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	store  *storage.SQLiteStore
	svc    *services.LedgerService
	loc    *time.Location
	actor  *core.User
}

func openApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	logger := log.FromContext(ctx)

	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	resolver := cli.NewResolver(store, cfg)
	svc, err := cli.NewLedgerService(logger, store, cli.ConnectAMQP(logger, cfg), resolver, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	externalID := opts.as
	if externalID == 0 {
		externalID = cfg.OwnerExternalID
	}
	// An unknown or inactive identity stays nil; the service denies it.
	actor, err := resolver.Resolve(ctx, externalID)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("resolve user %d: %w", externalID, err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		svc:    svc,
		loc:    loc,
		actor:  actor,
	}, nil
}

func (a *app) Close() error {
	return a.svc.Close()
}

// withApp opens the app around fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
