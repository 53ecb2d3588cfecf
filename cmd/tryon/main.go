package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"tryon/cmd/tryon/commands"
	"tryon/internal/infra/credentials"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "tryon",
		Usage: "virtual try-on from the command line",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "submit a try-on job and wait for the result",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "model",
						Usage:    "model image: local file, URL or data URI",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "garment",
						Usage:    "garment image: local file, URL or data URI",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "garment category (tops, bottoms, one-pieces, auto)",
					},
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "status polling interval",
						Value: 2 * time.Second,
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "give up after this long",
						Value: 5 * time.Minute,
					},
					&cli.StringFlag{
						Name:  "save-dir",
						Usage: "download the result image into this directory",
					},
				},
				Action: commands.RunAction,
			},
			{
				Name:  "apikey",
				Usage: "manage stored provider API keys",
				Commands: []*cli.Command{
					{
						Name:  "set",
						Usage: "store an API key in the database",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:  "provider",
								Usage: fmt.Sprintf("provider (%s or %s)", credentials.ProviderFashn, credentials.ProviderImgBB),
								Value: credentials.ProviderFashn,
							},
							&cli.StringFlag{
								Name:  "key",
								Usage: "API key; falls back to the provider's environment variable",
							},
						},
						Action: commands.APIKeySetAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "path to an env file",
		Value: ".env",
	}
}
