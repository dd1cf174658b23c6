package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hivedesk/messaging/pkg/apperr"
	"github.com/hivedesk/messaging/pkg/auth"
	"github.com/hivedesk/messaging/pkg/metrics"
)

// Authenticator validates the Bearer token and stashes the claims in the
// request context.
func Authenticator(tokens *auth.Manager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody(apperr.CodeUnauthenticated, "authorization header required"))
				return
			}

			claims, err := tokens.Validate(auth.StripBearer(header))
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody(apperr.CodeUnauthenticated, "invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), auth.UserKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Logger emits one structured line per request.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Metrics counts requests and observes latency, labeled by route pattern so
// path parameters don't explode cardinality.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}
