package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"tryon/internal/domain"
	"tryon/internal/middleware"
	"tryon/internal/tryon"
)

const (
	maxBodyBytes  = 16 << 20
	maxEventsWait = 30 * time.Second
)

type createPanelRequest struct {
	GarmentImage string `json:"garment_image"`
	Category     string `json:"category"`
}

// CreatePanel registers a panel. The garment preset may come from the
// garment_image query parameter or the JSON body.
func (a *App) CreatePanel(w http.ResponseWriter, r *http.Request) {
	var req createPanelRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
			return
		}
	}
	if req.GarmentImage == "" {
		req.GarmentImage = r.URL.Query().Get("garment_image")
	}
	if strings.Contains(req.GarmentImage, "%") {
		if decoded, err := url.PathUnescape(req.GarmentImage); err == nil {
			req.GarmentImage = decoded
		}
	}
	if req.Category == "" {
		req.Category = r.URL.Query().Get("category")
	}
	panel := a.Panels.Create(req.GarmentImage, req.Category)
	a.log(r).Info().Str("panel_id", panel.ID).Msg("panel created")
	a.json(w, http.StatusCreated, panel.Info())
}

func (a *App) GetPanel(w http.ResponseWriter, r *http.Request) {
	panel, ok := a.panel(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, panel.Info())
}

// StartPanel submits a job for the panel. The response carries the state
// right after submission; remote failures show up as phase "failed".
func (a *App) StartPanel(w http.ResponseWriter, r *http.Request) {
	panel, ok := a.panel(w, r)
	if !ok {
		return
	}
	var req domain.JobRequest
	if err := decodeBody(r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req = panel.Resolve(req)
	if req.Category = domain.NormalizeCategory(req.Category); req.Category == "" {
		req.Category = a.DefaultCategory
	}

	ctx, cancel := a.startContext(r)
	defer cancel()
	if err := panel.Tracker.Start(ctx, req); err != nil && !isJobError(err) {
		a.writeDomainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, panel.Info())
}

func (a *App) RetryPanel(w http.ResponseWriter, r *http.Request) {
	panel, ok := a.panel(w, r)
	if !ok {
		return
	}
	ctx, cancel := a.startContext(r)
	defer cancel()
	if err := panel.Tracker.Retry(ctx); err != nil && !isJobError(err) {
		a.writeDomainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, panel.Info())
}

func (a *App) CancelPanel(w http.ResponseWriter, r *http.Request) {
	panel, ok := a.panel(w, r)
	if !ok {
		return
	}
	panel.Tracker.Cancel()
	a.json(w, http.StatusOK, panel.Info())
}

func (a *App) DeletePanel(w http.ResponseWriter, r *http.Request) {
	if err := a.Panels.Remove(chi.URLParam(r, "id")); err != nil {
		a.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PanelEvents returns events newer than ?since. With ?wait=N it blocks up to
// N seconds for the first new event.
func (a *App) PanelEvents(w http.ResponseWriter, r *http.Request) {
	panel, ok := a.panel(w, r)
	if !ok {
		return
	}
	since, err := queryInt(r, "since")
	if err != nil || since < 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "since must be a non-negative integer")
		return
	}
	waitSeconds, err := queryInt(r, "wait")
	if err != nil || waitSeconds < 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "wait must be a non-negative integer")
		return
	}

	bus := panel.Tracker.Events()
	changed := bus.Changed()
	events := bus.Since(int64(since))
	if len(events) == 0 && waitSeconds > 0 {
		wait := min(time.Duration(waitSeconds)*time.Second, maxEventsWait)
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-changed:
			events = bus.Since(int64(since))
		case <-timer.C:
		case <-r.Context().Done():
			return
		}
	}
	if events == nil {
		events = []tryon.Event{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": events, "last_seq": bus.LastSeq()})
}

func (a *App) PanelAttempts(w http.ResponseWriter, r *http.Request) {
	if a.Attempts == nil {
		a.error(w, http.StatusNotImplemented, "not_implemented", "attempt history requires a database")
		return
	}
	panel, ok := a.panel(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil || limit < 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
		return
	}
	attempts, err := a.Attempts.ListByPanel(r.Context(), panel.ID, limit)
	if err != nil {
		a.log(r).Error().Err(err).Str("panel_id", panel.ID).Msg("list attempts failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load attempts")
		return
	}
	if attempts == nil {
		attempts = []domain.Attempt{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": attempts})
}

func (a *App) panel(w http.ResponseWriter, r *http.Request) (*tryon.Panel, bool) {
	panel, err := a.Panels.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.writeDomainError(w, err)
		return nil, false
	}
	return panel, true
}

func (a *App) log(r *http.Request) *zerolog.Logger {
	return middleware.LoggerFrom(r.Context(), a.Logger)
}

// startContext detaches the remote start from the client connection so a
// dropped request does not fail the job.
func (a *App) startContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := a.StartTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
}

// isJobError reports errors the tracker already recorded as a failure.
func isJobError(err error) bool {
	var jobErr *domain.JobError
	return errors.As(err, &jobErr)
}

func (a *App) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "panel not found")
	case errors.Is(err, domain.ErrNothingToRetry):
		a.error(w, http.StatusConflict, "nothing_to_retry", "no previous request to retry")
	case errors.Is(err, domain.ErrClosed):
		a.error(w, http.StatusConflict, "closed", "panel is closed")
	default:
		a.Logger.Error().Err(err).Msg("unhandled error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
