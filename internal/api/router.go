package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ferZyx/ip-cam-monitor/internal/middleware"
	"github.com/ferZyx/ip-cam-monitor/internal/ratelimit"
)

// HealthChecker reports dependency liveness for /healthz.
type HealthChecker func() map[string]string

// NewRouter assembles the full HTTP surface. A nil limiter disables rate
// limiting.
func NewRouter(alarms *AlarmHandler, hub *Hub, limiter *ratelimit.Limiter, rl ratelimit.LimitConfig, health HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status := health()
		code := http.StatusOK
		for _, v := range status {
			if v != "ok" {
				code = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, code, status)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if limiter != nil {
			r.Use(middleware.RateLimit(limiter, rl))
		}
		r.Get("/alarms", alarms.ListAlarms)
		r.Get("/alarms/{id}", alarms.GetAlarm)
		r.Get("/alarms/{id}/photo", alarms.GetPhoto)
		r.Post("/resolve", alarms.Resolve)
		r.Get("/ws", hub.ServeWS)
	})

	return r
}
