// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vrlearn/adaptd/internal/audit"
	"github.com/vrlearn/adaptd/internal/auth"
	"github.com/vrlearn/adaptd/internal/log"
	"github.com/vrlearn/adaptd/internal/metrics"
	"github.com/vrlearn/adaptd/internal/model"
)

// requestID tags every request with a request_id and threads a
// request-scoped logger through the context.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(log.ContextWithRequestID(r.Context(), id)))
	})
}

// accessLog writes one structured line per request. Query strings are
// dropped so websocket auth tokens never reach the log.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// requireAuth guards a subtree with the bearer-token check. allowQuery
// is enabled only for the websocket endpoint, where browser clients
// cannot set headers on the upgrade request.
func requireAuth(guard *auth.Guard, aud *audit.Logger, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := clientIP(r)
			token := auth.ExtractToken(r, allowQuery)
			if token == "" {
				aud.AuthMissing(r.Context(), addr, r.URL.Path)
				writeWireError(w, model.CodeUnauthorized, "missing credentials")
				return
			}
			if !guard.Authorize(r, allowQuery) {
				reason := "token_mismatch"
				if guard.Expired() {
					reason = "token_expired"
				}
				aud.AuthFailure(r.Context(), addr, r.URL.Path, reason)
				writeWireError(w, model.CodeUnauthorized, "invalid credentials")
				return
			}
			aud.AuthSuccess(r.Context(), addr, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

// perIPLimit applies a sliding-window request cap per client IP.
func perIPLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.RecordBusyRejection()
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			writeWireError(w, model.CodeBusy, "too many requests")
		}),
	)
}

// toolLimit applies one shared token bucket across all tool calls, so a
// burst of synchronous tool traffic cannot starve the session pipelines.
func toolLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				metrics.RecordBusyRejection()
				writeWireError(w, model.CodeBusy, "tool capacity exhausted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
