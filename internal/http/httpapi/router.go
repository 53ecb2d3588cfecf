package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"tryon/internal/http/handlers"
	"tryon/internal/infra"
	"tryon/internal/middleware"
)

type RouterOptions struct {
	AllowedOrigins  []string
	RateLimitPerMin int
	Logger          infra.Logger
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID(opts.Logger),
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	limit := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/v1/panels", func(r chi.Router) {
		r.Post("/", app.CreatePanel)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", app.GetPanel)
			r.Delete("/", app.DeletePanel)
			r.Get("/events", app.PanelEvents)
			r.Get("/attempts", app.PanelAttempts)
			r.Post("/cancel", app.CancelPanel)
			r.Group(func(r chi.Router) {
				// Only calls that hit the paid remote API are limited.
				r.Use(limit)
				r.Post("/start", app.StartPanel)
				r.Post("/retry", app.RetryPanel)
			})
		})
	})

	return r
}
