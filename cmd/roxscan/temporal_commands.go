package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/roxscan/service/temporal"
	"github.com/brojonat/roxscan/service/txstatus"
	"github.com/urfave/cli/v2"
	"go.temporal.io/api/workflowservice/v1"
)

func startWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Start a durable watch on a transaction",
		ArgsUsage: "<signature>",
		Description: `Start a Temporal workflow that polls the transaction until it is finalized,
unknown to the node, or stuck at zero confirmations. Starting a watch that is
already running returns the existing run.

Example:
  roxscan --cluster devnet temporal watch <signature> --timeout 30m`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Polling interval",
				Value: txstatus.AutoRefreshInterval,
			},
			&cli.IntFlag{
				Name:  "bailout",
				Usage: "Zero confirmation rounds before giving up",
				Value: txstatus.ZeroConfirmationBailout,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long the watch may run",
				Value: 10 * time.Minute,
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

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			run, err := temporalClient.StartWatch(context.Background(), temporal.WatchInput{
				Signature: c.Args().First(),
				Cluster:   sel.Cluster,
				CustomURL: sel.CustomURL,
				Interval:  c.Duration("interval"),
				Bailout:   c.Int("bailout"),
				Timeout:   c.Duration("timeout"),
			})
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

func describeWatchCommand() *cli.Command {
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

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			status, err := temporalClient.DescribeWatch(context.Background(), sel.Cluster, c.Args().First())
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

func cancelWatchCommand() *cli.Command {
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

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			signature := c.Args().First()
			if err := temporalClient.CancelWatch(context.Background(), sel.Cluster, signature); err != nil {
				return fmt.Errorf("failed to cancel watch: %w", err)
			}
			fmt.Fprintf(stdout(c), "✓ Watch cancelled: %s\n", temporal.WatchID(sel.Cluster, signature))
			return nil
		},
	}
}

// watchSummary is one row of the watch listing.
type watchSummary struct {
	WorkflowID string    `json:"workflow_id"`
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	StartTime  time.Time `json:"start_time"`
}

func listWatchesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List durable watches",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "running",
				Usage: "Only show running watches",
			},
		},
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			query := "WorkflowType='WatchTransactionWorkflow'"
			if c.Bool("running") {
				query += " AND ExecutionStatus='Running'"
			}

			ctx := context.Background()
			var watches []watchSummary
			var token []byte
			for {
				resp, err := temporalClient.SDKClient().ListWorkflow(ctx, &workflowservice.ListWorkflowExecutionsRequest{
					Query:         query,
					PageSize:      100,
					NextPageToken: token,
				})
				if err != nil {
					return fmt.Errorf("failed to list watches: %w", err)
				}
				for _, exec := range resp.GetExecutions() {
					watches = append(watches, watchSummary{
						WorkflowID: exec.GetExecution().GetWorkflowId(),
						RunID:      exec.GetExecution().GetRunId(),
						Status:     exec.GetStatus().String(),
						StartTime:  exec.GetStartTime().AsTime(),
					})
				}
				token = resp.GetNextPageToken()
				if len(token) == 0 {
					break
				}
			}

			if jsonOutput(c) {
				return output(c, watches)
			}

			// Pretty table output
			w := tabwriter.NewWriter(stdout(c), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WORKFLOW ID\tSTATUS\tSTARTED")
			for _, watch := range watches {
				fmt.Fprintf(w, "%s\t%s\t%s\n", watch.WorkflowID, watch.Status, watch.StartTime.Format(time.RFC3339))
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d watches\n", len(watches))
			return nil
		},
	}
}

// getTemporalClient connects using the global temporal flags.
func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	host := c.String("temporal-host")
	if host == "" {
		host = "localhost:7233"
	}
	namespace := c.String("temporal-namespace")
	if namespace == "" {
		namespace = "default"
	}
	taskQueue := c.String("task-queue")
	if taskQueue == "" {
		taskQueue = "roxscan-tx-watch"
	}

	temporalClient, err := temporal.NewClient(host, namespace, taskQueue, cliLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}
	return temporalClient, nil
}
