package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"queuehive/internal/cli"
)

func journalCommand(a *app) *cli.Command {
	var out outputFlags
	var window time.Duration
	return &cli.Command{
		Name:    "journal",
		Summary: "Query the recorded token transitions",
		Subcommands: []*cli.Command{
			{
				Name:    "summary",
				Summary: "Per-service totals and average wait",
				Flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("summary", pflag.ContinueOnError)
					fs.DurationVar(&window, "since", 24*time.Hour, "look back this far")
					out.add(fs)
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					store, err := a.journalStore(ctx)
					if err != nil {
						return err
					}
					summaries, err := store.Summaries(ctx, time.Now().Add(-window))
					if err != nil {
						return err
					}
					rows := make([][]any, 0, len(summaries))
					for _, s := range summaries {
						rows = append(rows, []any{s.ServiceID, s.Tokens, s.Served, s.Skipped, s.Cancelled, s.AvgWait.Round(time.Second), s.LastChanged.Local().Format("2006-01-02 15:04")})
					}
					return out.printTable(summaries, "SERVICE\tTOKENS\tSERVED\tSKIPPED\tCANCELLED\tAVG WAIT\tLAST CHANGE", rows)
				},
			},
			{
				Name:    "history",
				Summary: "List the transitions of one token",
				Usage:   "queuehive journal history <tokenId>",
				Flags: func() *pflag.FlagSet {
					fs := pflag.NewFlagSet("history", pflag.ContinueOnError)
					out.add(fs)
					return fs
				},
				Run: func(ctx context.Context, args []string) error {
					id, err := cli.ArgID(args, 0, "tokenId")
					if err != nil {
						return err
					}
					store, err := a.journalStore(ctx)
					if err != nil {
						return err
					}
					transitions, err := store.ListTransitions(ctx, id)
					if err != nil {
						return err
					}
					rows := make([][]any, 0, len(transitions))
					for _, t := range transitions {
						from := string(t.From)
						if from == "" {
							from = "-"
						}
						rows = append(rows, []any{t.ObservedAt.Local().Format("2006-01-02 15:04:05"), from, t.To, t.Source})
					}
					if len(rows) == 0 && !out.json {
						fmt.Fprintf(stdout, "No transitions recorded for token %d.\n", id)
						return nil
					}
					return out.printTable(transitions, "OBSERVED\tFROM\tTO\tSOURCE", rows)
				},
			},
		},
	}
}
