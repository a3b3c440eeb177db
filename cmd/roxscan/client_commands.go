package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/brojonat/roxscan/client"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the explorer server",
		Subcommands: []*cli.Command{
			clientClusterCommand(),
			clientStatusCommand(),
			clientStreamCommand(),
			clientAwaitCommand(),
			{
				Name:  "watch",
				Usage: "Durable watches through the server",
				Subcommands: []*cli.Command{
					clientWatchStartCommand(),
					clientWatchDescribeCommand(),
					clientWatchCancelCommand(),
				},
			},
		},
	}
}

func newClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
	}
	return client.NewClient(serverURL, nil, cliLogger()), nil
}

// interruptContext returns a context cancelled on SIGINT or SIGTERM.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func clientClusterCommand() *cli.Command {
	return &cli.Command{
		Name:  "cluster",
		Usage: "Probe the selected cluster through the server",
		Action: func(c *cli.Context) error {
			sel, err := selection(c)
			if err != nil {
				return err
			}
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			info, err := cl.Cluster(c.Context, sel)
			if err != nil {
				return fmt.Errorf("failed to get cluster info: %w", err)
			}

			if jsonOutput(c) {
				return output(c, info)
			}
			w := tabwriter.NewWriter(stdout(c), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Cluster:\t%s\n", info.Name)
			fmt.Fprintf(w, "RPC:\t%s\n", info.RPCURL)
			fmt.Fprintf(w, "Status:\t%s\n", info.Status)
			if info.Error != "" {
				fmt.Fprintf(w, "Error:\t%s\n", info.Error)
			}
			if info.Epoch != nil {
				fmt.Fprintf(w, "Epoch:\t%d\n", info.Epoch.Epoch)
			}
			return w.Flush()
		},
	}
}

func clientStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Look up a transaction's status through the server",
		ArgsUsage: "<signature>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			sel, err := selection(c)
			if err != nil {
				return err
			}
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			status, err := cl.Status(c.Context, c.Args().First(), sel)
			if err != nil {
				return fmt.Errorf("failed to get transaction status: %w", err)
			}

			if jsonOutput(c) {
				return output(c, status)
			}
			printStatus(stdout(c), txStatus{
				Signature: status.Signature,
				Cluster:   status.Cluster,
				Found:     status.Found,
				Finalized: status.Finalized,
				Info:      status.Info,
			})
			return nil
		},
	}
}

func clientStreamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Stream live status updates for a transaction",
		ArgsUsage: "<signature>",
		Description: `Open a live view on the server and print every status update.

The stream ends when the transaction settles unless --follow is set.

Example:
  roxscan client stream <signature> --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "follow",
				Usage: "Keep streaming after the transaction settles",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			sel, err := selection(c)
			if err != nil {
				return err
			}
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			ctx, cancel := interruptContext(c.Context)
			defer cancel()

			follow := c.Bool("follow")
			return cl.StreamStatus(ctx, c.Args().First(), sel, func(e client.StreamEvent) error {
				if err := printSnapshot(c, e.Snapshot); err != nil {
					return err
				}
				if !follow && client.Settled(e.Snapshot) {
					return client.ErrStop
				}
				return nil
			})
		},
	}
}

func clientAwaitCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a transaction settles",
		ArgsUsage: "<signature>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long to wait",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			sel, err := selection(c)
			if err != nil {
				return err
			}
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			ctx, cancel := interruptContext(c.Context)
			defer cancel()
			ctx, timeoutCancel := context.WithTimeout(ctx, c.Duration("timeout"))
			defer timeoutCancel()

			snap, err := cl.AwaitSettled(ctx, c.Args().First(), sel)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("timed out waiting for transaction to settle")
				}
				return fmt.Errorf("failed to await transaction: %w", err)
			}
			return printSnapshot(c, *snap)
		},
	}
}

func clientWatchStartCommand() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start a durable watch",
		ArgsUsage: "<signature>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			sel, err := selection(c)
			if err != nil {
				return err
			}
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			run, err := cl.StartWatch(c.Context, c.Args().First(), sel)
			if err != nil {
				return fmt.Errorf("failed to start watch: %w", err)
			}
			if jsonOutput(c) {
				return output(c, run)
			}
			fmt.Fprintf(stdout(c), "✓ Watch started: %s\n", run.WorkflowID)
			fmt.Fprintf(stdout(c), "  Run ID: %s\n", run.RunID)
			return nil
		},
	}
}

func clientWatchDescribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe",
		Usage:     "Describe a durable watch",
		Aliases:   []string{"desc"},
		ArgsUsage: "<signature>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			sel, err := selection(c)
			if err != nil {
				return err
			}
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			status, err := cl.DescribeWatch(c.Context, c.Args().First(), sel)
			if err != nil {
				return fmt.Errorf("failed to describe watch: %w", err)
			}
			if jsonOutput(c) {
				return output(c, status)
			}
			printWatchStatus(c, status.WorkflowID, status.Status, status.Outcome)
			if status.Snapshot != nil {
				return printSnapshot(c, *status.Snapshot)
			}
			return nil
		},
	}
}

func clientWatchCancelCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel a durable watch",
		ArgsUsage: "<signature>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			sel, err := selection(c)
			if err != nil {
				return err
			}
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			if err := cl.CancelWatch(c.Context, c.Args().First(), sel); err != nil {
				return fmt.Errorf("failed to cancel watch: %w", err)
			}
			fmt.Fprintf(stdout(c), "✓ Watch cancelled\n")
			return nil
		},
	}
}

func printWatchStatus(c *cli.Context, workflowID, status, outcome string) {
	w := tabwriter.NewWriter(stdout(c), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Workflow ID:\t%s\n", workflowID)
	fmt.Fprintf(w, "Status:\t%s\n", status)
	if outcome != "" {
		fmt.Fprintf(w, "Outcome:\t%s\n", outcome)
	}
	w.Flush()
}
