package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"queuehive/internal/apiclient"
	"queuehive/internal/cli"
	"queuehive/internal/models"
)

func servicesCommand(a *app) *cli.Command {
	var out outputFlags
	var create apiclient.CreateServiceRequest
	var update apiclient.UpdateServiceRequest

	return &cli.Command{
		Name:    "services",
		Summary: "Browse and manage company services",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Summary: "List the services of a company",
				Usage:   "queuehive services list <companyId>",
				Flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
					out.add(fs)
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					return withID(ctx, a, args, "companyId", func(client *apiclient.Client, id int64) error {
						services, err := client.ListServices(ctx, id)
						if err != nil {
							return err
						}
						return out.printServices(services)
					})
				},
			},
			{
				Name:    "show",
				Summary: "Show one service",
				Usage:   "queuehive services show <serviceId>",
				Flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
					out.add(fs)
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					return withID(ctx, a, args, "serviceId", func(client *apiclient.Client, id int64) error {
						service, err := client.GetService(ctx, id)
						if err != nil {
							return err
						}
						return out.printServices([]models.Service{service})
					})
				},
			},
			{
				Name:    "create",
				Summary: "Create a service",
				Flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("create", pflag.ContinueOnError)
					fs.Int64Var(&create.CompanyID, "company", 0, "company id (defaults to your company)")
					fs.StringVar(&create.Name, "name", "", "service name")
					fs.StringVar(&create.Description, "description", "", "description")
					fs.IntVar(&create.AverageServiceTime, "avg-time", 0, "average service time in minutes")
					out.add(fs)
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					identity, err := a.identity(ctx)
					if err != nil {
						return err
					}
					if create.CompanyID == 0 {
						create.CompanyID = identity.CompanyID
					}
					if create.CompanyID == 0 {
						return cli.Usagef("--company is required")
					}
					service, err := a.api.CreateService(ctx, create)
					if err != nil {
						return err
					}
					return out.printServices([]models.Service{service})
				},
			},
			{
				Name:    "update",
				Summary: "Update a service",
				Usage:   "queuehive services update <serviceId> --name <name> --avg-time <minutes>",
				Flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("update", pflag.ContinueOnError)
					fs.StringVar(&update.Name, "name", "", "service name")
					fs.StringVar(&update.Description, "description", "", "description")
					fs.IntVar(&update.AverageServiceTime, "avg-time", 0, "average service time in minutes")
					out.add(fs)
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					return withID(ctx, a, args, "serviceId", func(client *apiclient.Client, id int64) error {
						service, err := client.UpdateService(ctx, id, update)
						if err != nil {
							return err
						}
						return out.printServices([]models.Service{service})
					})
				},
			},
			{
				Name:    "delete",
				Summary: "Delete a service",
				Usage:   "queuehive services delete <serviceId>",
				Run: func(ctx context.Context, args []string) error {
					return withID(ctx, a, args, "serviceId", func(client *apiclient.Client, id int64) error {
						if err := client.DeleteService(ctx, id); err != nil {
							return err
						}
						fmt.Fprintf(stdout, "Service %d deleted.\n", id)
						return nil
					})
				},
			},
		},
	}
}
