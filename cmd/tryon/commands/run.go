package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"tryon/internal/app"
	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/storage"
	"tryon/internal/tryon"
)

const cliPanelID = "cli"

// RunAction submits one job and blocks until it settles.
func RunAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("env"))
	if err != nil {
		return err
	}
	if cmd.IsSet("interval") {
		cfg.PollInterval = cmd.Duration("interval")
	}
	if cmd.IsSet("timeout") {
		cfg.MaxPollDuration = cmd.Duration("timeout")
	}
	logger := infra.NewLogger("cli")

	model, err := imageRef(cmd.String("model"))
	if err != nil {
		return err
	}
	garment, err := imageRef(cmd.String("garment"))
	if err != nil {
		return err
	}
	req := domain.JobRequest{ModelImage: model, GarmentImage: garment, Category: domain.NormalizeCategory(cmd.String("category"))}
	if req.Category == "" {
		req.Category = cfg.DefaultCategory
	}

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()
	if !deps.Client.HasCredentials() {
		return cli.Exit("no API key: set FASHN_API_KEY or run `tryon apikey set`", 1)
	}

	tracker := tryon.NewTracker(deps.Client, deps.TrackerOptions(ctx, cliPanelID))
	defer tracker.Close()

	stopProgress := printProgress(tracker.Events())
	defer stopProgress()

	if err := tracker.Start(ctx, req); err != nil {
		msg, _ := tracker.Error()
		if msg == "" {
			msg = err.Error()
		}
		return cli.Exit("try-on failed: "+msg, 1)
	}

	snap, err := tracker.Wait(ctx)
	if err != nil {
		tracker.Cancel()
		return cli.Exit("cancelled", 130)
	}
	if snap.Phase != tryon.PhaseSucceeded {
		return cli.Exit("try-on failed: "+snap.Error, 1)
	}
	fmt.Fprintln(os.Stdout, snap.Result)

	if dir := cmd.String("save-dir"); dir != "" {
		store, err := storage.NewFileStore(dir)
		if err != nil {
			return err
		}
		key, err := storage.NewResultArchiver(store, nil, &logger).Archive(ctx, cliPanelID, snap.JobID, snap.Result)
		if err != nil {
			return fmt.Errorf("save result: %w", err)
		}
		fmt.Fprintf(os.Stderr, "saved %s/%s\n", store.Root(), key)
	}
	return nil
}

// printProgress echoes tracker progress to stderr until the returned func is called.
func printProgress(bus *tryon.EventBus) func() {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		var seq int64
		for {
			changed := bus.Changed()
			for _, event := range bus.Since(seq) {
				seq = event.Seq
				if event.Message != "" && event.Type != tryon.EventError {
					fmt.Fprintln(os.Stderr, event.Message)
				}
			}
			select {
			case <-changed:
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}
