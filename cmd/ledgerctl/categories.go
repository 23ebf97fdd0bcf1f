package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fundledger/internal/core"
)

func categoriesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage income and expense categories",
		Long:  `List active categories, or add, rename and deactivate them (owner only).`,
	}

	cmd.AddCommand(listCategoriesCmd(opts))
	cmd.AddCommand(addCategoryCmd(opts))
	cmd.AddCommand(renameCategoryCmd(opts))
	cmd.AddCommand(deactivateCategoryCmd(opts))
	return cmd
}

func listCategoriesCmd(opts *rootOptions) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kinds := []core.CategoryKind{core.KindIncome, core.KindExpense}
			if kind != "" {
				k, err := core.ParseCategoryKind(kind)
				if err != nil {
					return err
				}
				kinds = []core.CategoryKind{k}
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				defer tw.Flush()
				fmt.Fprintln(tw, "ID\tKIND\tNAME")
				for _, k := range kinds {
					cats, err := a.svc.ListCategories(ctx, a.actor, k)
					if err != nil {
						return err
					}
					for _, c := range cats {
						fmt.Fprintf(tw, "%d\t%s\t%s\n", c.ID, c.Kind, c.Name)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "income or expense (default: both)")
	return cmd
}

func addCategoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <kind> <name>",
		Short: "Add a category",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := core.ParseCategoryKind(args[0])
			if err != nil {
				return err
			}
			name := strings.Join(args[1:], " ")

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				cat, err := a.svc.AddCategory(ctx, a.actor, kind, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Category %d: %s %s\n", cat.ID, cat.Kind, cat.Name)
				return nil
			})
		},
	}
}

func renameCategoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <new-name>",
		Short: "Rename a category",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			name := strings.Join(args[1:], " ")

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.svc.RenameCategory(ctx, a.actor, id, name)
				return reportResult(cmd, res, err)
			})
		},
	}
}

func deactivateCategoryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate an unused category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				res, err := a.svc.DeactivateCategory(ctx, a.actor, id)
				return reportResult(cmd, res, err)
			})
		},
	}
}

// reportResult prints a successful outcome and turns a refused one into an
// error so the exit status reflects it.
func reportResult(cmd *cobra.Command, res core.Result, err error) error {
	if err != nil {
		return err
	}
	if !res.OK {
		return errors.New(res.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Message)
	return nil
}
