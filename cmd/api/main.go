package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tryon/internal/app"
	"tryon/internal/http/handlers"
	httpapi "tryon/internal/http/httpapi"
	"tryon/internal/infra"
	"tryon/internal/tryon"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise dependencies")
	}
	defer deps.Close()

	// Poll sessions outlive requests but stop with the process.
	sessions, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()

	panels := tryon.NewPanels(func(panelID string) *tryon.Tracker {
		return tryon.NewTracker(deps.Client, deps.TrackerOptions(sessions, panelID))
	})
	defer panels.CloseAll()

	var attempts handlers.AttemptLister
	if deps.Attempts != nil {
		attempts = deps.Attempts
	}
	api := handlers.NewApp(panels, attempts, cfg.DefaultCategory, logger)
	api.StartTimeout = cfg.RemoteTimeout * 2

	router := httpapi.NewRouter(api, httpapi.RouterOptions{
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Bool("credentials", deps.Client.HasCredentials()).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
