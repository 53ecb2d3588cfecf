package handlers

import (
	"net/http"
)

// Health reports liveness and how many panels are open.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"status": "ok", "panels": a.Panels.Len()})
}
