package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"queuehive/internal/apiclient"
	"queuehive/internal/cli"
	"queuehive/internal/models"
	"queuehive/internal/reconcile"
	"queuehive/internal/view"
)

// binding builds a poll-only engine and intent binding for one-shot
// commands.
func (a *app) binding(ctx context.Context, notify func(reconcile.Snapshot)) (*view.Binding, *reconcile.Engine, error) {
	client, err := a.client(ctx)
	if err != nil {
		return nil, nil, err
	}
	engine := reconcile.New(client, nil, reconcile.Options{
		PollInterval:      a.cfg.PollInterval,
		FailureThreshold:  a.cfg.FailureThreshold,
		HintRatePerMinute: a.cfg.HintRatePerMinute,
		HintBurst:         a.cfg.HintBurst,
		Notify:            notify,
		Metrics:           a.metrics,
	})
	binding := view.NewBinding(client, engine, a.sessions, view.Options{})
	a.onAuthFail = binding.HandleAuthFailure
	return binding, engine, nil
}

func printNotices(b *view.Binding) {
	for _, notice := range b.Notices().Drain() {
		if notice.Level == view.LevelInfo {
			fmt.Fprintln(stdout, notice.Message)
		}
	}
}

func tokensCommand(a *app) *cli.Command {
	var out outputFlags
	var includeFinished bool

	outFlags := func(name string) func() *pflag.FlagSet {
		return func() *pflag.FlagSet {
			fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
			out.add(fs)
			return fs
		}
	}

	action := func(name, summary string, intent func(*view.Binding) func(context.Context, int64) (models.Token, error)) *cli.Command {
		return &cli.Command{
			Name:    name,
			Summary: summary,
			Usage:   fmt.Sprintf("queuehive tokens %s <tokenId>", name),
			Flags:   outFlags(name),
			Run: func(ctx context.Context, args []string) error {
				id, err := cli.ArgID(args, 0, "tokenId")
				if err != nil {
					return err
				}
				binding, engine, err := a.binding(ctx, nil)
				if err != nil {
					return err
				}
				defer engine.Close()
				token, err := intent(binding)(ctx, id)
				if err != nil {
					return err
				}
				return out.printToken(token)
			},
		}
	}

	return &cli.Command{
		Name:    "tokens",
		Summary: "Take and manage queue tokens",
		Subcommands: []*cli.Command{
			{
				Name:    "join",
				Summary: "Take a token for a service",
				Usage:   "queuehive tokens join <serviceId>",
				Flags:   outFlags("join"),
				Run: func(ctx context.Context, args []string) error {
					serviceID, err := cli.ArgID(args, 0, "serviceId")
					if err != nil {
						return err
					}
					binding, engine, err := a.binding(ctx, nil)
					if err != nil {
						return err
					}
					defer engine.Close()
					token, err := binding.JoinQueue(ctx, serviceID)
					if err != nil {
						return err
					}
					if out.json {
						return printJSON(token)
					}
					if snap, ok := engine.Snapshot(token.ID); ok {
						fmt.Fprintln(stdout, view.RenderToken(snap))
					}
					fmt.Fprintf(stdout, "Follow it live with 'queuehive watch %d'.\n", token.ID)
					return nil
				},
			},
			{
				Name:    "show",
				Summary: "Show a token with its queue position",
				Usage:   "queuehive tokens show <tokenId>",
				Flags:   outFlags("show"),
				Run: func(ctx context.Context, args []string) error {
					id, err := cli.ArgID(args, 0, "tokenId")
					if err != nil {
						return err
					}
					_, engine, err := a.binding(ctx, nil)
					if err != nil {
						return err
					}
					defer engine.Close()
					if err := engine.StartTracking(ctx, id); err != nil {
						return err
					}
					snap, _ := engine.Snapshot(id)
					if out.json {
						return printJSON(snap.Token)
					}
					fmt.Fprintln(stdout, view.RenderToken(snap))
					return nil
				},
			},
			{
				Name:    "position",
				Summary: "Show how many active tokens are ahead",
				Usage:   "queuehive tokens position <tokenId>",
				Run: func(ctx context.Context, args []string) error {
					return withID(ctx, a, args, "tokenId", func(client *apiclient.Client, id int64) error {
						position, err := client.GetQueuePosition(ctx, id)
						if err != nil {
							return err
						}
						fmt.Fprintln(stdout, position)
						return nil
					})
				},
			},
			{
				Name:    "mine",
				Summary: "List your tokens",
				Flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("mine", pflag.ContinueOnError)
					fs.BoolVar(&includeFinished, "all", false, "include served, skipped and cancelled tokens")
					out.add(fs)
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					identity, err := a.identity(ctx)
					if err != nil {
						return err
					}
					var tokens []models.Token
					if includeFinished {
						tokens, err = a.api.ListAllUserTokens(ctx, identity.UserID)
					} else {
						tokens, err = a.api.ListUserTokens(ctx, identity.UserID)
					}
					if err != nil {
						return err
					}
					return out.printTokens(tokens)
				},
			},
			{
				Name:    "active",
				Summary: "List the active tokens of a service",
				Usage:   "queuehive tokens active <serviceId>",
				Flags:   outFlags("active"),
				Run: func(ctx context.Context, args []string) error {
					return withID(ctx, a, args, "serviceId", func(client *apiclient.Client, id int64) error {
						tokens, err := client.ListActiveTokens(ctx, id)
						if err != nil {
							return err
						}
						return out.printTokens(tokens)
					})
				},
			},
			{
				Name:    "call-next",
				Summary: "Call the next waiting token of a service",
				Usage:   "queuehive tokens call-next <serviceId>",
				Flags:   outFlags("call-next"),
				Run: func(ctx context.Context, args []string) error {
					serviceID, err := cli.ArgID(args, 0, "serviceId")
					if err != nil {
						return err
					}
					binding, engine, err := a.binding(ctx, nil)
					if err != nil {
						return err
					}
					defer engine.Close()
					token, err := binding.CallNext(ctx, serviceID)
					if err != nil {
						return err
					}
					printNotices(binding)
					if token.ID == 0 {
						return nil
					}
					return out.printToken(token)
				},
			},
			action("serve", "Mark a called token as served", func(b *view.Binding) func(context.Context, int64) (models.Token, error) {
				return b.MarkServed
			}),
			action("skip", "Skip a token", func(b *view.Binding) func(context.Context, int64) (models.Token, error) {
				return b.Skip
			}),
			action("cancel", "Cancel a token", func(b *view.Binding) func(context.Context, int64) (models.Token, error) {
				return b.Cancel
			}),
			{
				Name:    "set-status",
				Summary: "Set a token status directly",
				Usage:   "queuehive tokens set-status <tokenId> <PENDING|CALLING|SERVED|SKIPPED|CANCELLED>",
				Flags:   outFlags("set-status"),
				Run: func(ctx context.Context, args []string) error {
					if len(args) < 2 {
						return cli.Usagef("usage: queuehive tokens set-status <tokenId> <status>")
					}
					status, ok := models.ParseStatus(args[1])
					if !ok {
						return cli.Usagef("unknown status %q", args[1])
					}
					return withID(ctx, a, args, "tokenId", func(client *apiclient.Client, id int64) error {
						token, err := client.SetTokenStatus(ctx, id, status)
						if err != nil {
							return err
						}
						return out.printToken(token)
					})
				},
			},
		},
	}
}
