package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/roxscan/service/db"
	"github.com/urfave/cli/v2"
)

func listFinalizedCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Usage:   "List cached finalized transactions for the selected cluster",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of transactions",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			slug, err := cacheCluster(c)
			if err != nil {
				return err
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			txns, err := store.List(context.Background(), slug, c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if jsonOutput(c) {
				return output(c, txns)
			}

			// Pretty table output
			w := tabwriter.NewWriter(stdout(c), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SIGNATURE\tSLOT\tRESULT\tBLOCK TIME\tCACHED")
			for _, txn := range txns {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					txn.Signature,
					txn.Slot,
					resultText(txn),
					formatOptionalTime(txn.BlockTime),
					txn.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d transactions\n", len(txns))
			return nil
		},
	}
}

func getFinalizedCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a cached finalized transaction",
		ArgsUsage: "<signature>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			slug, err := cacheCluster(c)
			if err != nil {
				return err
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			txn, err := store.Get(context.Background(), slug, c.Args().First())
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("transaction %s is not cached for %s", c.Args().First(), slug)
			}
			if err != nil {
				return fmt.Errorf("failed to get transaction: %w", err)
			}

			if jsonOutput(c) {
				return output(c, txn)
			}

			// Pretty output
			out := stdout(c)
			fmt.Fprintf(out, "Signature:  %s\n", txn.Signature)
			fmt.Fprintf(out, "Cluster:    %s\n", txn.Cluster)
			fmt.Fprintf(out, "Slot:       %d\n", txn.Slot)
			fmt.Fprintf(out, "Result:     %s\n", resultText(txn))
			fmt.Fprintf(out, "Fee:        %d lamports\n", txn.Fee)
			fmt.Fprintf(out, "Block Time: %s\n", formatOptionalTime(txn.BlockTime))
			fmt.Fprintf(out, "Cached:     %s\n", txn.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func deleteFinalizedCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Evict a transaction from the finalized cache",
		Aliases:   []string{"rm"},
		ArgsUsage: "<signature>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: transaction signature")
			}
			slug, err := cacheCluster(c)
			if err != nil {
				return err
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			signature := c.Args().First()
			if err := store.Delete(context.Background(), slug, signature); err != nil {
				return fmt.Errorf("failed to delete transaction: %w", err)
			}
			fmt.Fprintf(stdout(c), "✓ Evicted %s from the %s cache\n", signature, slug)
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the finalized cache schema",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			fmt.Fprintln(stdout(c), "✓ Database schema is up to date")
			return nil
		},
	}
}

// cacheCluster returns the cache key for the selected cluster. Custom
// endpoints are never cached.
func cacheCluster(c *cli.Context) (string, error) {
	sel, err := selection(c)
	if err != nil {
		return "", err
	}
	slug, ok := sel.CacheKey()
	if !ok {
		return "", fmt.Errorf("the %s cluster has no finalized cache", sel.Cluster.Slug())
	}
	return slug, nil
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := db.Connect(context.Background(), dbURL)
	if err != nil {
		return nil, nil, err
	}

	store := db.NewStore(pool, nil, cliLogger())
	closer := func() { pool.Close() }

	return store, closer, nil
}

func resultText(txn *db.FinalizedTransaction) string {
	if txn.Failed() {
		return "error"
	}
	return "success"
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "(unknown)"
	}
	return t.Format(time.RFC3339)
}
