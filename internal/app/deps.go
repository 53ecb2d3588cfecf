package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tryon/internal/adapter/repo"
	"tryon/internal/infra"
	"tryon/internal/infra/credentials"
	"tryon/internal/providers/fashn"
	"tryon/internal/providers/imgbb"
	"tryon/internal/storage"
	"tryon/internal/tryon"
)

// Deps holds the collaborators shared by the API server and the CLI. Fields
// for optional features stay nil when their configuration is absent.
type Deps struct {
	Config      *infra.Config
	Logger      infra.Logger
	Pool        *pgxpool.Pool
	Credentials *credentials.Store
	Client      *fashn.Client
	Stager      *imgbb.Client
	Poller      *tryon.Poller
	Attempts    *repo.AttemptRepositoryPG
	Archiver    *storage.ResultArchiver
}

// Build connects the database when configured, resolves API keys and
// constructs the remote clients.
func Build(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Deps, error) {
	d := &Deps{Config: cfg, Logger: logger}

	if cfg.HasDatabase() {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		d.Pool = pool
		runner := infra.NewSQLRunner(pool, logger)
		d.Attempts = repo.NewAttemptRepository(runner)
		if err := d.Attempts.EnsureSchema(ctx); err != nil {
			d.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		d.Credentials = credentials.NewStore(runner)
	}

	fashnKey, err := d.Credentials.ResolveKey(ctx, credentials.ProviderFashn, cfg.FashnAPIKey)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("resolve fashn key: %w", err)
	}
	d.Client, err = fashn.NewClient(fashn.Options{
		APIKey:         fashnKey,
		BaseURL:        cfg.FashnBaseURL,
		Logger:         &logger,
		RequestTimeout: cfg.RemoteTimeout,
	})
	if err != nil {
		d.Close()
		return nil, err
	}

	imgbbKey, err := d.Credentials.ResolveKey(ctx, credentials.ProviderImgBB, cfg.ImgBBAPIKey)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("resolve imgbb key: %w", err)
	}
	if imgbbKey != "" {
		d.Stager, err = imgbb.NewClient(imgbb.Options{APIKey: imgbbKey, BaseURL: cfg.ImgBBBaseURL, Logger: &logger})
		if err != nil {
			d.Close()
			return nil, err
		}
	} else {
		logger.Info().Msg("image staging disabled; inline images are sent as data URIs")
	}

	if cfg.StoragePath != "" {
		store, err := storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.Archiver = storage.NewResultArchiver(store, &http.Client{Timeout: cfg.RemoteTimeout * 2}, &logger)
	}

	d.Poller = tryon.NewPoller(d.Client, tryon.PollerOptions{
		Interval:    cfg.PollInterval,
		MaxDuration: cfg.MaxPollDuration,
		Logger:      &logger,
	})
	return d, nil
}

// TrackerOptions returns tracker options wired to the optional features.
func (d *Deps) TrackerOptions(ctx context.Context, panelID string) tryon.Options {
	opts := tryon.Options{
		PanelID: panelID,
		Poller:  d.Poller,
		Logger:  &d.Logger,
		Context: ctx,
	}
	if d.Stager != nil {
		opts.Stager = d.Stager
	}
	var attempts, archiver tryon.Recorder
	if d.Attempts != nil {
		attempts = d.Attempts
	}
	if d.Archiver != nil {
		archiver = d.Archiver
		// Result downloads take longer than a history insert.
		opts.RecordTimeout = 30 * time.Second
	}
	opts.Recorder = tryon.Recorders(attempts, archiver)
	return opts
}

func (d *Deps) Close() {
	if d.Pool != nil {
		d.Pool.Close()
		d.Pool = nil
	}
}
