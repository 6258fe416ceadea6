package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/doconv/convertd/internal/config"
	"github.com/doconv/convertd/internal/convert"
	"github.com/doconv/convertd/internal/job"
	"github.com/doconv/convertd/internal/ws"
)

func NewRouter(cfg *config.Config, store *job.Store, dispatcher *job.Dispatcher, engine convert.Engine, uploads Uploads, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(CORS)

	h := NewHandlers(cfg, store, dispatcher, engine, uploads)

	r.Get("/health", h.Health)
	r.Get("/formats", h.Formats)
	r.Get("/server-stats", h.ServerStats)
	r.Get("/convert-status/{jobID}", h.ConvertStatus)
	r.Get("/jobs", h.ListJobs)

	r.Group(func(r chi.Router) {
		if cfg.SubmitRPS > 0 {
			limiter := rate.NewLimiter(rate.Limit(cfg.SubmitRPS), cfg.SubmitBurst)
			r.Use(RateLimit(limiter))
		}
		r.Post("/convert", h.Convert)
		r.Post("/convert-async", h.ConvertAsync)
	})

	if hub != nil {
		store.SetNotify(hub.Publish)
		r.Get("/ws/jobs", hub.Handle)
	}

	return r
}
