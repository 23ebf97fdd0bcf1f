package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fundledger/internal/core"
	"fundledger/internal/export"
)

func usersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage ledger users (owner only)",
	}

	cmd.AddCommand(listUsersCmd(opts))
	cmd.AddCommand(addUserCmd(opts))
	cmd.AddCommand(removeUserCmd(opts))
	return cmd
}

func listUsersCmd(opts *rootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				users, err := a.svc.ListUsers(ctx, a.actor, !all)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				defer tw.Flush()
				fmt.Fprintln(tw, "ID\tEXTERNAL ID\tNAME\tROLE\tACTIVE\tSINCE")
				for _, u := range users {
					fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%t\t%s\n",
						u.ID, u.ExternalID, u.Name, u.Role, u.IsActive,
						u.CreatedAt.In(a.loc).Format(export.TimeLayout))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include deactivated users")
	return cmd
}

func addUserCmd(opts *rootOptions) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "add <external-id> <name>",
		Short: "Invite a user, reactivating a removed one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			externalID, err := parseID(args[0])
			if err != nil {
				return err
			}
			r, err := core.ParseRole(role)
			if err != nil {
				return err
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				u, err := a.svc.InviteUser(ctx, a.actor, externalID, args[1], r)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %s (%d) is now an active %s\n", u.Name, u.ExternalID, u.Role)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&role, "role", string(core.RoleWorker), "owner, worker or viewer")
	return cmd
}

func removeUserCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <external-id>",
		Short: "Deactivate a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			externalID, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ok, err := a.svc.RemoveUser(ctx, a.actor, externalID)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%w: no active user %d", core.ErrUserNotFound, externalID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %d deactivated\n", externalID)
				return nil
			})
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
