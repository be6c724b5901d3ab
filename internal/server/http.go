// Package server wires the REST and WebSocket surface of the quiz API.
package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/WillSoph/top-game-score/internal/billing"
	"github.com/WillSoph/top-game-score/internal/config"
	"github.com/WillSoph/top-game-score/internal/group"
	"github.com/WillSoph/top-game-score/internal/identity"
	"github.com/WillSoph/top-game-score/internal/leaderboard"
	"github.com/WillSoph/top-game-score/internal/logging"
	"github.com/WillSoph/top-game-score/internal/session"
)

// Handlers collects the per-domain HTTP handlers mounted by the server.
type Handlers struct {
	Identity    *identity.HTTPHandlers
	Groups      *group.HTTPHandlers
	Leaderboard *leaderboard.HTTPHandler
	Billing     *billing.HTTPHandlers
	GroupWS     *session.Handler
	Auth        *identity.Manager

	// Ping checks backing-store connectivity for /healthz.
	Ping func(ctx context.Context) error
}

// NewHTTPServer builds the API server with all routes mounted.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, h Handlers) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if h.Ping != nil {
			if err := h.Ping(r.Context()); err != nil {
				logger.Error().Err(err).Msg("dependency ping failed")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/identity/anonymous", h.Identity.Anonymous)

	authed := func(fn http.HandlerFunc) http.Handler {
		return h.Auth.Middleware(fn)
	}

	mux.Handle("POST /v1/groups", authed(h.Groups.Create))
	mux.Handle("GET /v1/groups/{id}", authed(h.Groups.Get))
	mux.Handle("POST /v1/groups/{id}/claim", authed(h.Groups.ClaimHost))
	mux.Handle("POST /v1/groups/{id}/questions", authed(h.Groups.AddQuestion))
	mux.Handle("POST /v1/groups/{id}/open", authed(h.Groups.Open))
	mux.Handle("POST /v1/groups/{id}/start", authed(h.Groups.StartQuestion))
	mux.Handle("POST /v1/groups/{id}/finish", authed(h.Groups.Finish))
	mux.Handle("POST /v1/groups/{id}/join", authed(h.Groups.Join))
	mux.Handle("POST /v1/groups/{id}/answers", authed(h.Groups.SubmitAnswer))
	mux.Handle("GET /v1/groups/{id}/leaderboard", authed(h.Leaderboard.HandleGet))

	mux.Handle("POST /v1/billing/entitlements", authed(h.Billing.Apply))

	mux.Handle("GET /ws/groups/{id}", authed(h.GroupWS.HandleWebSocket))

	handler := corsMiddleware(cfg.CORS, requestLogging(logger, mux))

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}
}

// requestLogging stores the base logger in the request context for
// downstream use.
func requestLogging(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(logging.IntoContext(r.Context(), logger)))
	})
}

func corsMiddleware(cfg config.CORS, next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
			h.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
			h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
