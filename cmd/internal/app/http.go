package app

import (
	"net/http"

	authapi "sauat/cmd/internal/auth/api"
	"sauat/cmd/internal/presence"
)

// Route paths served by the app.
const (
	PresenceHubPath   = "/hubs/presence"
	PresenceCountPath = "/api/presence"
	MetricsPath       = "/metrics"
)

// registerHTTP mounts every route. Browser-facing JSON routes sit behind the
// CORS allow-list; the presence hub enforces its own origin policy.
func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	auth *authapi.Handler,
	ws *presence.WSGateway,
	count *presence.CountHandler,
	metrics *Metrics,
) {
	api := http.NewServeMux()
	if auth != nil {
		auth.Register(api)
	}
	api.Handle(PresenceCountPath, count)

	mux.Handle("/api/", WithCORS(api, cfg, log))
	mux.Handle(PresenceHubPath, ws)
	mux.Handle(MetricsPath, metrics.Handler())
}
