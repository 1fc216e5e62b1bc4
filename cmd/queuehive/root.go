package main

import "queuehive/internal/cli"

func rootCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:    "queuehive",
		Summary: "QueueHive queue tokens from the terminal",
		Subcommands: []*cli.Command{
			loginCommand(a),
			registerCommand(a),
			registerCompanyCommand(a),
			logoutCommand(a),
			whoamiCommand(a),
			profileCommand(a),
			companiesCommand(a),
			servicesCommand(a),
			tokensCommand(a),
			adminCommand(a),
			watchCommand(a),
			boardCommand(a),
			journalCommand(a),
		},
	}
}
