// Package api serves the balance-check HTTP interface.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/giftcard-mini/internal/proxy"
	"github.com/shehryarbajwa/giftcard-mini/internal/ratelimit"
)

// Routes are the optional collaborators of the router. Nil fields leave
// their routes out.
type Routes struct {
	Proxy       *proxy.Server
	RateLimiter *ratelimit.Limiter
	Metrics     http.Handler
	Logger      *slog.Logger
}

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(routes Routes) *mux.Router {
	r := mux.NewRouter()

	logger := routes.Logger
	if logger == nil {
		logger = h.logger
	}
	r.Use(RequestIDMiddleware, LoggingMiddleware(logger), corsMiddleware)

	api := r.PathPrefix("/v1").Subrouter()

	// Only logins are rate limited.
	var auth http.Handler = http.HandlerFunc(h.Auth)
	if routes.RateLimiter != nil {
		auth = RateLimitMiddleware(routes.RateLimiter)(auth)
	}
	api.Handle("/auth", auth).Methods(http.MethodPost, http.MethodOptions)

	api.HandleFunc("/sessions/{id}", h.Session).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.DeleteSession).Methods(http.MethodDelete, http.MethodOptions)
	api.HandleFunc("/sessions/{id}/account", h.Account).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/transactions", h.Transactions).Methods(http.MethodGet)

	if routes.Proxy != nil {
		api.HandleFunc("/sessions/{id}/devtools", func(w http.ResponseWriter, r *http.Request) {
			routes.Proxy.HandleDebugConnection(w, r, mux.Vars(r)["id"])
		}).Methods(http.MethodGet)
	}

	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	if routes.Metrics != nil {
		r.Handle("/metrics", routes.Metrics).Methods(http.MethodGet)
	}

	return r
}
