package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"fundledger/internal/core"
	"fundledger/internal/export"
	"fundledger/internal/services"
)

func balanceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the fund balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				bal, err := a.svc.Balance(ctx, a.actor)
				if err != nil {
					return err
				}
				printBalance(cmd.OutOrStdout(), bal)
				return nil
			})
		},
	}
}

func postCmd(opts *rootOptions) *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "post <type> <amount> [category]",
		Short: "Post an operation",
		Long: `Append an operation to the ledger. Types: income, expense, reserve_in, reserve_out.
Income and expense need a category of the same kind; reserve movements take none.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := core.ParseOperationType(args[0])
			if err != nil {
				return err
			}
			amount, err := core.ParseAmount(args[1])
			if err != nil {
				return err
			}
			req := services.PostRequest{Type: typ, Amount: amount, Comment: comment}
			if len(args) == 3 {
				req.CategoryName = args[2]
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				op, err := a.svc.PostOperation(ctx, a.actor, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Posted operation %d: %s %d\n", op.ID, op.Type, op.Amount)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&comment, "comment", "", "free-form comment")
	return cmd
}

func historyCmd(opts *rootOptions) *cobra.Command {
	var (
		types   []string
		days    int
		limit   int
		csvPath string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List operations, newest first",
		Long: `List operations newest first. The owner sees every operation, other users only
their own. --csv exports the selection (owner only, no default limit); use - for stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var f core.OperationFilter
			for _, s := range types {
				typ, err := core.ParseOperationType(s)
				if err != nil {
					return err
				}
				f.Types = append(f.Types, typ)
			}
			f.Limit = limit

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if days > 0 {
					start, end := core.PeriodFromDays(time.Now(), days, a.loc)
					f.Start, f.End = &start, &end
				}

				if csvPath != "" {
					return exportHistory(ctx, cmd.OutOrStdout(), a, f, csvPath)
				}

				ops, err := a.svc.History(ctx, a.actor, f)
				if err != nil {
					return err
				}
				printOperations(cmd.OutOrStdout(), ops, a.loc)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&types, "type", nil, "operation types to include (repeatable)")
	cmd.Flags().IntVar(&days, "days", 0, "only operations from the last N days")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of operations (default 50, unlimited for --csv)")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write CSV to this path instead of a table")
	return cmd
}

func exportHistory(ctx context.Context, stdout io.Writer, a *app, f core.OperationFilter, path string) error {
	var w io.Writer = stdout
	if path != "-" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer file.Close()
		w = file
	}

	n, err := a.svc.ExportCSV(ctx, a.actor, w, f)
	if err != nil {
		return err
	}
	if path != "-" {
		fmt.Fprintf(stdout, "Exported %d operations to %s\n", n, path)
	}
	return nil
}

func reportCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Balance reports",
	}

	cmd.AddCommand(periodReportCmd(opts))
	cmd.AddCommand(quickReportCmd(opts))
	return cmd
}

func periodReportCmd(opts *rootOptions) *cobra.Command {
	var (
		days int
		kind string
	)

	cmd := &cobra.Command{
		Use:   "period",
		Short: "Owner report over the last N days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			types, err := typesForKind(kind)
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				report, err := a.svc.PeriodReport(ctx, a.actor, days, types...)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), report, a.loc)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "period length in days (7, 30, 90...)")
	cmd.Flags().StringVar(&kind, "kind", "all", "all, income or expense")
	return cmd
}

func quickReportCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "quick",
		Short: "Balance plus your latest operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				report, err := a.svc.QuickReport(ctx, a.actor, limit)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), report, a.loc)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of operations (10, 20, 30...)")
	return cmd
}

func typesForKind(kind string) ([]core.OperationType, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "all":
		return nil, nil
	case "income":
		return []core.OperationType{core.OpIncome}, nil
	case "expense":
		return []core.OperationType{core.OpExpense}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q: want all, income or expense", kind)
	}
}

func printBalance(w io.Writer, bal core.Balance) {
	fmt.Fprintf(w, "Total:     %d\n", bal.Total)
	fmt.Fprintf(w, "Reserve:   %d\n", bal.Reserve)
	fmt.Fprintf(w, "Available: %d\n", bal.Available)
}

func printReport(w io.Writer, r *services.Report, loc *time.Location) {
	if r.Start != nil && r.End != nil {
		fmt.Fprintf(w, "Period: %s .. %s\n",
			r.Start.In(loc).Format("2006-01-02"),
			r.End.In(loc).Format("2006-01-02"))
	}
	printBalance(w, r.Balance)
	fmt.Fprintf(w, "Income: %d  Expense: %d  Reserve in: %d  Reserve out: %d\n",
		r.Totals.Income, r.Totals.Expense, r.Totals.ReserveIn, r.Totals.ReserveOut)
	fmt.Fprintln(w)
	printOperations(w, r.Operations, loc)
}

func printOperations(w io.Writer, ops []core.Operation, loc *time.Location) {
	if len(ops) == 0 {
		fmt.Fprintln(w, "No operations")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tWHEN\tTYPE\tAMOUNT\tCATEGORY\tBY\tCOMMENT")
	for _, op := range ops {
		category, by := "-", "-"
		if op.Category != nil {
			category = op.Category.Name
		}
		if op.CreatedBy != nil {
			by = op.CreatedBy.Name
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			op.ID,
			op.CreatedAt.In(loc).Format(export.TimeLayout),
			op.Type,
			op.Amount,
			category,
			by,
			op.Comment)
	}
}
