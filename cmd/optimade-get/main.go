// Command optimade-get runs one filter against several OPTIMADE providers
// and prints the merged results as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/nlstn/go-optimade/internal/client"
)

// Exit codes.
const (
	exitProviderFailed = 1
	exitInvalidFilter  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &cli.App{
		Name:  "optimade-get",
		Usage: "Query several OPTIMADE providers with one filter",
		Description: `Sends the filter to every base URL, follows pagination links up to the
per-provider cap and prints one JSON document keyed by base URL.

Example:
  optimade-get --filter 'elements HAS "Si"' \
    --base-url https://optimade.materialsproject.org \
    --base-url https://aiida.materialscloud.org/mc3d/optimade`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "OPTIMADE filter expression",
			},
			&cli.StringSliceFlag{
				Name:     "base-url",
				Aliases:  []string{"u"},
				Usage:    "Provider base URL (repeatable)",
				EnvVars:  []string{"OPTIMADE_BASE_URLS"},
				Required: true,
			},
			&cli.StringFlag{
				Name:  "endpoint",
				Usage: "Entry endpoint to query",
				Value: client.DefaultEndpoint,
			},
			&cli.IntFlag{
				Name:  "page-limit",
				Usage: "Page size asked of each provider",
				Value: client.DefaultPageLimit,
			},
			&cli.IntFlag{
				Name:  "max-results-per-provider",
				Usage: "Stop following pages once a provider returned this many entries (0 for no cap)",
				Value: client.DefaultMaxResults,
			},
			&cli.StringFlag{
				Name:  "response-fields",
				Usage: "Comma separated attributes to return",
			},
			&cli.StringFlag{
				Name:  "sort",
				Usage: "Sort parameter passed to providers",
			},
			&cli.BoolFlag{
				Name:  "sequential",
				Usage: "Query providers one after another",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Providers queried at once",
				Value: client.DefaultConcurrency,
			},
			&cli.IntFlag{
				Name:  "max-attempts",
				Usage: "Attempts per page when rate limited",
				Value: client.DefaultMaxAttempts,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Delay between rate limited attempts",
				Value: client.DefaultRetryDelay,
			},
			&cli.StringFlag{
				Name:  "version-path",
				Usage: "Versioned path below each base URL",
				Value: client.DefaultVersionPath,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log requests to stderr",
			},
		},
		Action: func(c *cli.Context) error {
			return run(c.Context, c)
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, client.ErrInvalidFilter) {
			os.Exit(exitInvalidFilter)
		}
		os.Exit(exitProviderFailed)
	}
}

func run(ctx context.Context, c *cli.Context) error {
	level := slog.LevelWarn
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	mode := client.ModeConcurrent
	if c.Bool("sequential") {
		mode = client.ModeSequential
	}

	cl, err := client.New(
		client.WithBaseURLs(c.StringSlice("base-url")...),
		client.WithMode(mode),
		client.WithConcurrency(c.Int("concurrency")),
		client.WithMaxResultsPerProvider(c.Int("max-results-per-provider")),
		client.WithMaxAttempts(c.Int("max-attempts")),
		client.WithRetryDelay(c.Duration("retry-delay")),
		client.WithVersionPath(c.String("version-path")),
		client.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := cl.Get(ctx, client.Query{
		Filter:         c.String("filter"),
		Endpoint:       c.String("endpoint"),
		ResponseFields: splitFields(c.String("response-fields")),
		PageLimit:      c.Int("page-limit"),
		Sort:           c.String("sort"),
	})
	if err != nil {
		return err
	}
	logger.Debug("Query finished", "providers", len(results.Providers), "duration", time.Since(start))

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}

	if err := results.Err(); err != nil {
		return cli.Exit(err.Error(), exitProviderFailed)
	}
	return nil
}

func splitFields(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
