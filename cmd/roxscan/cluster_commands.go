package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/explorer"
	"github.com/brojonat/roxscan/service/solana"
	"github.com/urfave/cli/v2"
)

func clusterCommands() *cli.Command {
	return &cli.Command{
		Name:  "cluster",
		Usage: "Cluster endpoint commands",
		Subcommands: []*cli.Command{
			clusterURLCommand(),
			clusterStatusCommand(),
		},
	}
}

type resolvedURL struct {
	Cluster string `json:"cluster"`
	Context string `json:"context"`
	URL     string `json:"url"`
}

func clusterURLCommand() *cli.Command {
	return &cli.Command{
		Name:  "url",
		Usage: "Resolve the RPC endpoint for the selected cluster",
		Description: `Resolve the RPC endpoint the explorer would use for --cluster.

Overrides are read from MAINNET_RPC_URL, DEVNET_RPC_URL, PUBLIC_MAINNET_RPC_URL
and PUBLIC_DEVNET_RPC_URL. With --public the endpoint is resolved for a browser
on --hostname instead of for the server.

Example:
  roxscan --cluster devnet cluster url --public --hostname explorer.example.com`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "public",
				Usage: "Resolve the browser-facing endpoint",
			},
			&cli.StringFlag{
				Name:  "hostname",
				Usage: "Hostname the explorer is served from",
				Value: "localhost",
			},
		},
		Action: func(c *cli.Context) error {
			sel, err := selection(c)
			if err != nil {
				return err
			}

			resolver := cluster.NewResolver(cluster.EnvFromOS())
			res := resolvedURL{Cluster: sel.Cluster.Slug(), Context: "server"}
			if c.Bool("public") {
				res.Context = "client"
				res.URL = resolver.ClientURL(sel.Cluster, sel.CustomURL, c.String("hostname"))
			} else {
				res.URL = resolver.ServerURL(sel.Cluster, sel.CustomURL)
			}

			if jsonOutput(c) {
				return output(c, res)
			}
			fmt.Fprintln(stdout(c), res.URL)
			return nil
		},
	}
}

func clusterStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Probe the selected cluster's RPC node",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Probe timeout",
				Value: 15 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			svc, err := explorerService(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			info := svc.ClusterInfo(ctx)

			if jsonOutput(c) {
				return output(c, info)
			}

			w := tabwriter.NewWriter(stdout(c), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Cluster:\t%s\n", info.Name)
			fmt.Fprintf(w, "Status:\t%s\n", info.Status)
			if info.Error != "" {
				fmt.Fprintf(w, "Error:\t%s\n", info.Error)
			}
			if info.Epoch != nil {
				fmt.Fprintf(w, "Epoch:\t%s\n", explorer.FormatEpoch(info.Epoch.Epoch))
				fmt.Fprintf(w, "Slot:\t%s\n", explorer.FormatSlot(info.Epoch.AbsoluteSlot))
				fmt.Fprintf(w, "First Available Block:\t%s\n", explorer.FormatSlot(info.FirstAvailableBlock))
			}
			w.Flush()

			if info.Status == cluster.Failure {
				return fmt.Errorf("cluster %s is not responding", info.Cluster.Slug())
			}
			return nil
		},
	}
}

// explorerService builds an uncached explorer for the selected cluster that
// talks to the node directly.
func explorerService(c *cli.Context) (*explorer.Service, error) {
	sel, err := selection(c)
	if err != nil {
		return nil, err
	}
	logger := cliLogger()
	resolver := cluster.NewResolver(cluster.EnvFromOS())
	endpoint := resolver.ServerURL(sel.Cluster, sel.CustomURL)
	node := solana.NewClient(solana.NewRPCClient(endpoint), sel.Cluster.Slug(), nil, logger)
	return explorer.NewService(sel, node, nil, nil, logger), nil
}
