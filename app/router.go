package app

import (
	"encoding/json"
	"net/http"

	trophyhandlers "github.com/Black-And-White-Club/trophy-bot/app/modules/trophy/infrastructure/handlers"
	"github.com/Black-And-White-Club/trophy-bot/app/observability/attr"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router mounts health, metrics and the rate-limited /v1 command surface.
func (app *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(trophyhandlers.CorrelationMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", app.health)
	r.Handle("/metrics", promhttp.HandlerFor(app.Observability.Registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(trophyhandlers.RateLimitMiddleware(app.limiter))
		r.Mount("/v1", app.TrophyModule.Handlers.Routes())
	})
	return r
}

func (app *App) health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := app.DB.PingContext(r.Context()); err != nil {
		app.Observability.Logger.WarnContext(r.Context(), "Health check failed", attr.Error(err))
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
