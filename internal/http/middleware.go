package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LogProvider provides request logger for middleware.
type LogProvider interface {
	Logger() *slog.Logger
}

func loggerFrom(provider LogProvider) *slog.Logger {
	if provider != nil && provider.Logger() != nil {
		return provider.Logger()
	}
	return slog.Default()
}

// RequestLogger writes one structured line per request, keyed by the matched
// route pattern. Health probes go to debug so they do not flood the add-on log.
func RequestLogger(provider LogProvider) func(http.Handler) http.Handler {
	logger := loggerFrom(provider)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			level := slog.LevelInfo
			switch {
			case route == "/healthz":
				level = slog.LevelDebug
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// StripIngressPrefix removes the Home Assistant ingress prefix so routes match
// both direct and proxied requests.
func StripIngressPrefix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if prefix := strings.TrimSuffix(strings.TrimSpace(r.Header.Get("X-Ingress-Path")), "/"); prefix != "" {
			if trimmed, ok := strings.CutPrefix(r.URL.Path, prefix); ok {
				if trimmed == "" {
					trimmed = "/"
				}
				r.URL.Path = trimmed
				r.URL.RawPath = ""
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RecoverJSON turns a handler panic into a 500 with the usual error body.
func RecoverJSON(provider LogProvider) func(http.Handler) http.Handler {
	logger := loggerFrom(provider)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				logger.Error("panic recovered",
					"panic", fmt.Sprint(recovered),
					"request_id", middleware.GetReqID(r.Context()),
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error": map[string]string{"code": "internal_error", "message": "Internal server error"},
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
