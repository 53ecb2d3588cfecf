package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/tryon"
)

// AttemptLister reads persisted attempt history.
type AttemptLister interface {
	ListByPanel(ctx context.Context, panelID string, limit int) ([]domain.Attempt, error)
}

type App struct {
	Panels          *tryon.Panels
	Attempts        AttemptLister
	DefaultCategory string
	StartTimeout    time.Duration
	Logger          infra.Logger
}

func NewApp(panels *tryon.Panels, attempts AttemptLister, defaultCategory string, logger infra.Logger) *App {
	return &App{
		Panels:          panels,
		Attempts:        attempts,
		DefaultCategory: domain.NormalizeCategory(defaultCategory),
		StartTimeout:    60 * time.Second,
		Logger:          logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}
