package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "roxscan",
		Usage: "Rox explorer CLI",
		Description: `A command-line tool for the roxscan explorer.

Use this CLI to query clusters and transactions directly over RPC, talk to a
running explorer server, inspect the finalized transaction cache, follow status
events on NATS and manage durable Temporal watches.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Direct RPC commands
			clusterCommands(),
			txCommands(),
			// Client commands (HTTP API)
			clientCommands(),
			// Finalized transaction cache
			{
				Name:  "db",
				Usage: "Finalized transaction cache commands",
				Subcommands: []*cli.Command{
					listFinalizedCommand(),
					getFinalizedCommand(),
					deleteFinalizedCommand(),
					migrateCommand(),
				},
			},
			// Temporal watch commands
			{
				Name:  "temporal",
				Usage: "Durable transaction watch commands",
				Subcommands: []*cli.Command{
					listWatchesCommand(),
					startWatchCommand(),
					describeWatchCommand(),
					cancelWatchCommand(),
				},
			},
			// NATS status event commands
			{
				Name:  "nats",
				Usage: "NATS status event commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "cluster",
				Aliases: []string{"c"},
				Usage:   "Cluster to query (mainnet-beta, devnet, custom)",
				EnvVars: []string{"ROXSCAN_CLUSTER"},
				Value:   "mainnet-beta",
			},
			&cli.StringFlag{
				Name:    "custom-url",
				Usage:   "RPC URL for the custom cluster",
				EnvVars: []string{"ROXSCAN_CUSTOM_URL"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Temporal task queue for watches",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "roxscan-tx-watch",
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Explorer server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter applied to JSON output (implies --json)",
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
