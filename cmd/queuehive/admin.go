package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/pflag"

	"queuehive/internal/apiclient"
	"queuehive/internal/cli"
	"queuehive/internal/view"
)

func adminCommand(a *app) *cli.Command {
	var out outputFlags
	outFlags := func(name string) func() *pflag.FlagSet {
		return func() *pflag.FlagSet {
			fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
			out.add(fs)
			return fs
		}
	}

	return &cli.Command{
		Name:    "admin",
		Summary: "Super admin tools",
		Subcommands: a.guarded(view.RouteAdminDashboard, []*cli.Command{
			{
				Name:    "users",
				Summary: "List all users",
				Flags:   outFlags("users"),
				Run: func(ctx context.Context, args []string) error {
					client, err := a.client(ctx)
					if err != nil {
						return err
					}
					users, err := client.ListUsers(ctx)
					if err != nil {
						return err
					}
					return out.printUsers(users)
				},
			},
			{
				Name:    "delete-user",
				Summary: "Delete a user",
				Usage:   "queuehive admin delete-user <userId>",
				Run: func(ctx context.Context, args []string) error {
					return withID(ctx, a, args, "userId", func(client *apiclient.Client, id int64) error {
						if err := client.DeleteUser(ctx, id); err != nil {
							return err
						}
						fmt.Fprintf(stdout, "User %d deleted.\n", id)
						return nil
					})
				},
			},
			{
				Name:    "tokens",
				Summary: "List every token",
				Flags:   outFlags("tokens"),
				Run: func(ctx context.Context, args []string) error {
					client, err := a.client(ctx)
					if err != nil {
						return err
					}
					tokens, err := client.ListAllTokens(ctx)
					if err != nil {
						return err
					}
					return out.printTokens(tokens)
				},
			},
			{
				Name:    "overview",
				Summary: "Show the system dashboard",
				Flags:   outFlags("overview"),
				Run: func(ctx context.Context, args []string) error {
					client, err := a.client(ctx)
					if err != nil {
						return err
					}
					overview, err := client.DashboardOverview(ctx)
					if err != nil {
						return err
					}
					if out.json {
						return printJSON(overview)
					}
					rows := [][]any{
						{"companies", overview.TotalCompanies},
						{"approved", overview.ApprovedCompanies},
						{"pending", overview.PendingCompanies},
						{"users", overview.TotalUsers},
						{"tokens today", overview.TotalTokensToday},
						{"active queues", overview.ActiveQueues},
					}
					if overview.SystemHealth != "" {
						rows = append(rows, []any{"health", overview.SystemHealth})
					}
					days := make([]string, 0, len(overview.DailyTraffic))
					for day := range overview.DailyTraffic {
						days = append(days, day)
					}
					sort.Strings(days)
					for _, day := range days {
						rows = append(rows, []any{"traffic " + day, overview.DailyTraffic[day]})
					}
					return out.printTable(overview, "METRIC\tVALUE", rows)
				},
			},
		}),
	}
}
