package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/brojonat/roxscan/client"
	"github.com/brojonat/roxscan/service/cluster"
	"github.com/brojonat/roxscan/service/explorer"
	"github.com/brojonat/roxscan/service/txstatus"
	"github.com/urfave/cli/v2"
)

func txCommands() *cli.Command {
	return &cli.Command{
		Name:  "tx",
		Usage: "Transaction commands (direct RPC)",
		Subcommands: []*cli.Command{
			txStatusCommand(),
			txShowCommand(),
			txWatchCommand(),
		},
	}
}

// txStatus is the JSON form of a one-off status lookup.
type txStatus struct {
	Signature string               `json:"signature"`
	Cluster   string               `json:"cluster"`
	Found     bool                 `json:"found"`
	Finalized bool                 `json:"finalized"`
	Info      *txstatus.StatusInfo `json:"info,omitempty"`
}

func txStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Fetch a transaction's confirmation status",
		ArgsUsage: "<signature>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 15 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			signature := c.Args().First()

			svc, err := explorerService(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			info, err := svc.Status(ctx, signature)
			if err != nil {
				return fmt.Errorf("failed to get transaction status: %w", err)
			}

			res := txStatus{
				Signature: signature,
				Cluster:   svc.Selection().Cluster.Slug(),
				Found:     info != nil,
				Finalized: info.Finalized(),
				Info:      info,
			}
			if jsonOutput(c) {
				return output(c, res)
			}
			printStatus(stdout(c), res)
			return nil
		},
	}
}

func printStatus(out io.Writer, res txStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "Signature:\t%s\n", res.Signature)
	if !res.Found {
		fmt.Fprintf(w, "Status:\tNot Found\n")
		return
	}
	result := "Success"
	if res.Info.Err != nil {
		result = "Error"
	}
	fmt.Fprintf(w, "Result:\t%s\n", result)
	fmt.Fprintf(w, "Confirmations:\t%s\n", res.Info.Confirmations)
	if res.Info.ConfirmationStatus != "" {
		fmt.Fprintf(w, "Confirmation Status:\t%s\n", res.Info.ConfirmationStatus)
	}
	fmt.Fprintf(w, "Slot:\t%s\n", explorer.FormatSlot(res.Info.Slot))
	if res.Info.Timestamp != nil {
		fmt.Fprintf(w, "Timestamp:\t%s\n", explorer.FormatTimestamp(*res.Info.Timestamp))
	}
}

func txShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a transaction's overview, accounts and log",
		ArgsUsage: "<signature>",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout",
				Value: 15 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}

			svc, err := explorerService(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()
			page := svc.TransactionPage(ctx, c.Args().First())

			if jsonOutput(c) {
				return output(c, page)
			}
			if page.Card != nil {
				return fmt.Errorf("%s", cardText(page.Card))
			}
			printTransactionPage(stdout(c), page)
			return nil
		},
	}
}

func cardText(card *explorer.Card) string {
	if card.Subtext == "" {
		return card.Text
	}
	return card.Text + ": " + card.Subtext
}

func printTransactionPage(out io.Writer, page *explorer.TransactionPage) {
	o := page.Overview
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Signature:\t%s\n", o.Signature)
	fmt.Fprintf(w, "Result:\t%s\n", o.Result)
	if o.ErrorReason != nil {
		fmt.Fprintf(w, "Error:\t%s\n", o.ErrorReason.Text)
	}
	fmt.Fprintf(w, "Confirmations:\t%s\n", o.Confirmations)
	fmt.Fprintf(w, "Slot:\t%s\n", o.Slot)
	for _, row := range [][2]string{
		{"Timestamp", o.Timestamp},
		{"Blockhash", o.RecentBlockhash},
		{o.TransferLabel, o.TransferAmount},
		{"Fee", o.Fee},
		{"Compute Units", o.ComputeUnits},
		{"Memo", o.Memo},
	} {
		if row[0] != "" && row[1] != "" {
			fmt.Fprintf(w, "%s:\t%s\n", row[0], row[1])
		}
	}
	w.Flush()

	if page.DetailsCard != nil {
		fmt.Fprintf(out, "\n%s\n", cardText(page.DetailsCard))
		return
	}

	if len(page.Accounts) > 0 {
		fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tADDRESS\tCHANGE\tPOST BALANCE\tDETAILS")
		for _, a := range page.Accounts {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", a.Number, a.Address, a.Delta, a.PostBalance, strings.Join(a.Badges, ", "))
		}
		w.Flush()
	}

	if len(page.LogMessages) > 0 {
		fmt.Fprintln(out, "\nLog:")
		for _, line := range page.LogMessages {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
}

func txWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Poll a transaction until it settles",
		ArgsUsage: "<signature>",
		Description: `Poll a transaction's status the same way an open transaction page does and
print every change. Polling stops once the transaction is finalized, unknown to
the node, or stuck at zero confirmations for --bailout rounds.

Example:
  roxscan --cluster devnet tx watch <signature> --interval 1s`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Auto refresh interval",
				Value: txstatus.AutoRefreshInterval,
			},
			&cli.IntFlag{
				Name:  "bailout",
				Usage: "Zero confirmation rounds before giving up",
				Value: txstatus.ZeroConfirmationBailout,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			signature := c.Args().First()

			svc, err := explorerService(c)
			if err != nil {
				return err
			}

			// Create context that cancels on interrupt
			ctx, cancel := context.WithCancel(c.Context)
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					cancel()
				case <-ctx.Done():
				}
			}()

			probeCtx, probeCancel := context.WithTimeout(ctx, 15*time.Second)
			info := svc.ClusterInfo(probeCtx)
			probeCancel()
			if info.Status == cluster.Failure {
				return fmt.Errorf("cluster %s is not responding: %s", info.Cluster.Slug(), info.Error)
			}

			return watchLocal(ctx, c, signature, svc, txstatus.Options{
				Interval:      c.Duration("interval"),
				Bailout:       c.Int("bailout"),
				ClusterStatus: info.Status,
				Logger:        cliLogger(),
			})
		},
	}
}

// watchLocal runs a poller for signature and prints snapshots until the
// transaction settles or ctx is done.
func watchLocal(ctx context.Context, c *cli.Context, signature string, fetcher txstatus.Fetcher, opts txstatus.Options) error {
	updates := make(chan txstatus.Snapshot, 1)
	opts.OnUpdate = func(snap txstatus.Snapshot) {
		// latest snapshot wins
		select {
		case <-updates:
		default:
		}
		updates <- snap
	}

	poller := txstatus.New(signature, fetcher, opts)
	poller.Start(ctx)
	defer poller.Close()

	if !jsonOutput(c) {
		fmt.Fprintf(os.Stderr, "Watching %s (Ctrl+C to stop)\n\n", signature)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-poller.Done():
			return nil
		case snap := <-updates:
			if err := printSnapshot(c, snap); err != nil {
				return err
			}
			if client.Settled(snap) {
				return nil
			}
		}
	}
}

func printSnapshot(c *cli.Context, snap txstatus.Snapshot) error {
	if jsonOutput(c) {
		return output(c, snap)
	}

	out := stdout(c)
	ts := snap.UpdatedAt.Format(time.RFC3339)
	switch {
	case snap.FetchStatus == txstatus.Fetching:
		fmt.Fprintf(out, "[%s] fetching...\n", ts)
	case snap.FetchStatus == txstatus.FetchFailed:
		fmt.Fprintf(out, "[%s] fetch failed: %s\n", ts, snap.Error)
	case snap.NotFound():
		fmt.Fprintf(out, "[%s] not found\n", ts)
	default:
		fmt.Fprintf(out, "[%s] confirmations=%s status=%s mode=%s\n",
			ts, snap.Info.Confirmations, snap.Info.ConfirmationStatus, snap.Mode)
	}
	return nil
}
