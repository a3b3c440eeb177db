package main

import (
	"context"
	"fmt"
	"os"

	natspkg "github.com/brojonat/roxscan/service/nats"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

// subscribeCommand follows status events published by explorer views and watches.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to transaction status events",
		ArgsUsage: "[signature]",
		Description: `Subscribe to status events published to NATS JetStream.

Events for one transaction are published to the subject txstatus.{signature}.
Without a signature every event on the stream is printed.

Example:
  roxscan nats subscribe <signature> --jq '.confirmations'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Durable consumer name (survives restarts)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() > 1 {
				return fmt.Errorf("accepts at most one argument: transaction signature")
			}
			natsURL := c.String("nats-url")
			opts := natspkg.SubscribeOptions{
				Signature: c.Args().First(),
				Durable:   c.String("durable"),
			}

			ctx, cancel := interruptContext(c.Context)
			defer cancel()

			if !jsonOutput(c) {
				fmt.Fprintf(os.Stderr, "Subscribed to %s on %s (Ctrl+C to stop)\n\n", opts.FilterSubject(), natsURL)
			}

			printErrs := make(chan error, 1)
			err := natspkg.Subscribe(ctx, natsURL, opts, cliLogger(), func(event *natspkg.TxStatusEvent) {
				if ctx.Err() != nil {
					return
				}
				if jsonOutput(c) {
					if err := output(c, event); err != nil {
						select {
						case printErrs <- err:
						default:
						}
						cancel()
					}
					return
				}
				fmt.Fprintf(stdout(c), "[%s] %s %s confirmations=%s status=%s mode=%s\n",
					event.UpdatedAt.Format("15:04:05"),
					event.Cluster,
					event.Signature,
					orDash(event.Confirmations),
					orDash(event.ConfirmationStatus),
					event.Mode,
				)
			})
			select {
			case err := <-printErrs:
				return err
			default:
			}
			if err != nil {
				return fmt.Errorf("subscription failed: %w", err)
			}
			return nil
		},
	}
}

func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the TXSTATUS JetStream stream",
		Action: func(c *cli.Context) error {
			nc, err := natspkg.Connect(c.String("nats-url"), "roxscan-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(context.Background(), natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}
			info, err := stream.Info(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if jsonOutput(c) {
				return output(c, info)
			}
			out := stdout(c)
			fmt.Fprintf(out, "Stream:     %s\n", info.Config.Name)
			fmt.Fprintf(out, "Subjects:   %v\n", info.Config.Subjects)
			fmt.Fprintf(out, "Messages:   %d\n", info.State.Msgs)
			fmt.Fprintf(out, "Bytes:      %d\n", info.State.Bytes)
			fmt.Fprintf(out, "Consumers:  %d\n", info.State.Consumers)
			fmt.Fprintf(out, "Max Age:    %s\n", info.Config.MaxAge)
			return nil
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
