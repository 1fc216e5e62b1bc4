package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"queuehive/internal/apiclient"
	"queuehive/internal/cli"
	"queuehive/internal/models"
)

func companiesCommand(a *app) *cli.Command {
	var out outputFlags
	var listAll, listPending bool
	var create apiclient.CreateCompanyRequest
	var update apiclient.UpdateCompanyRequest

	outFlags := func(name string) func() *pflag.FlagSet {
		return func() *pflag.FlagSet {
			fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
			out.add(fs)
			return fs
		}
	}

	return &cli.Command{
		Name:    "companies",
		Summary: "Browse and manage companies",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Summary: "List approved companies",
				Flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
					fs.BoolVar(&listAll, "all", false, "include unapproved companies (super admin)")
					fs.BoolVar(&listPending, "pending", false, "only companies awaiting approval (super admin)")
					out.add(fs)
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					client, err := a.client(ctx)
					if err != nil {
						return err
					}
					var companies []models.Company
					switch {
					case listPending:
						companies, err = client.ListPendingCompanies(ctx)
					case listAll:
						companies, err = client.ListAllCompanies(ctx)
					default:
						companies, err = client.ListCompanies(ctx)
					}
					if err != nil {
						return err
					}
					return out.printCompanies(companies)
				},
			},
			{
				Name:    "show",
				Summary: "Show one company",
				Usage:   "queuehive companies show <companyId>",
				Flags:   outFlags("show"),
				Run: func(ctx context.Context, args []string) error {
					return withID(ctx, a, args, "companyId", func(client *apiclient.Client, id int64) error {
						company, err := client.GetCompany(ctx, id)
						if err != nil {
							return err
						}
						return out.printCompanies([]models.Company{company})
					})
				},
			},
			{
				Name:    "owner",
				Summary: "Show the company owned by a user",
				Usage:   "queuehive companies owner [userId]",
				Flags:   outFlags("owner"),
				Run: func(ctx context.Context, args []string) error {
					identity, err := a.identity(ctx)
					if err != nil {
						return err
					}
					ownerID := identity.UserID
					if len(args) > 0 {
						if ownerID, err = cli.ArgID(args, 0, "userId"); err != nil {
							return err
						}
					}
					company, err := a.api.GetCompanyByOwner(ctx, ownerID)
					if err != nil {
						return err
					}
					return out.printCompanies([]models.Company{company})
				},
			},
			{
				Name:    "create",
				Summary: "Create a company",
				Flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("create", pflag.ContinueOnError)
					fs.StringVar(&create.Name, "name", "", "company name")
					fs.StringVar(&create.Category, "category", "", "category")
					out.add(fs)
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					client, err := a.client(ctx)
					if err != nil {
						return err
					}
					company, err := client.CreateCompany(ctx, create)
					if err != nil {
						return err
					}
					return out.printCompanies([]models.Company{company})
				},
			},
			{
				Name:    "update",
				Summary: "Update a company",
				Usage:   "queuehive companies update <companyId> --name <name> [flags]",
				Flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("update", pflag.ContinueOnError)
					fs.StringVar(&update.Name, "name", "", "company name")
					fs.StringVar(&update.Description, "description", "", "description")
					fs.StringVar(&update.Location, "location", "", "location")
					fs.StringVar(&update.Category, "category", "", "category")
					out.add(fs)
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					return withID(ctx, a, args, "companyId", func(client *apiclient.Client, id int64) error {
						company, err := client.UpdateCompany(ctx, id, update)
						if err != nil {
							return err
						}
						return out.printCompanies([]models.Company{company})
					})
				},
			},
			{
				Name:    "approve",
				Summary: "Approve a pending company (super admin)",
				Usage:   "queuehive companies approve <companyId>",
				Run: func(ctx context.Context, args []string) error {
					return withID(ctx, a, args, "companyId", func(client *apiclient.Client, id int64) error {
						company, err := client.ApproveCompany(ctx, id)
						if err != nil {
							return err
						}
						fmt.Fprintf(stdout, "Company %d (%s) approved.\n", company.ID, company.Name)
						return nil
					})
				},
			},
			{
				Name:    "reject",
				Summary: "Reject a pending company; the backend removes it (super admin)",
				Usage:   "queuehive companies reject <companyId>",
				Run: func(ctx context.Context, args []string) error {
					return withID(ctx, a, args, "companyId", func(client *apiclient.Client, id int64) error {
						if err := client.RejectCompany(ctx, id); err != nil {
							return err
						}
						fmt.Fprintf(stdout, "Company %d rejected and removed.\n", id)
						return nil
					})
				},
			},
			{
				Name:    "delete",
				Summary: "Delete a company",
				Usage:   "queuehive companies delete <companyId>",
				Run: func(ctx context.Context, args []string) error {
					return withID(ctx, a, args, "companyId", func(client *apiclient.Client, id int64) error {
						if err := client.DeleteCompany(ctx, id); err != nil {
							return err
						}
						fmt.Fprintf(stdout, "Company %d deleted.\n", id)
						return nil
					})
				},
			},
			{
				Name:    "analytics",
				Summary: "Show visitor and queue statistics for a company",
				Usage:   "queuehive companies analytics <companyId>",
				Flags:   outFlags("analytics"),
				Run: func(ctx context.Context, args []string) error {
					return withID(ctx, a, args, "companyId", func(client *apiclient.Client, id int64) error {
						visitors, err := client.DailyVisitors(ctx, id)
						if err != nil {
							return err
						}
						stats, err := client.QueueStats(ctx, id)
						if err != nil {
							return err
						}
						if out.json {
							return printJSON(map[string]any{"dailyVisitors": visitors, "queueStats": stats})
						}
						fmt.Fprintf(stdout, "Visitors today: %d\n", visitors)
						for _, line := range stats {
							fmt.Fprintf(stdout, "  %s\n", line)
						}
						return nil
					})
				},
			},
		},
	}
}

// withID parses the first positional id and hands it to run with a ready
// client.
func withID(ctx context.Context, a *app, args []string, name string, run func(*apiclient.Client, int64) error) error {
	id, err := cli.ArgID(args, 0, name)
	if err != nil {
		return err
	}
	client, err := a.client(ctx)
	if err != nil {
		return err
	}
	return run(client, id)
}
