package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/content-lifecycle/pkg/lifecycle"
)

// DefaultPrincipalHeader carries the acting user of a request
const DefaultPrincipalHeader = "X-Principal-ID"

// Middleware is a function that wraps an http.Handler
type Middleware func(http.Handler) http.Handler

// PrincipalMiddleware stores the principal named by header in the request context.
// Requests without the header act as the system principal.
func PrincipalMiddleware(header string) Middleware {
	if header == "" {
		header = DefaultPrincipalHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get(header); id != "" {
				r = r.WithContext(lifecycle.WithPrincipal(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs each request with its status and duration
func LoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"request_id", middleware.GetReqID(r.Context()),
				"principal", lifecycle.PrincipalFrom(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}

// RecoveryMiddleware turns a panic into a 500 response.
// Store corruption found during an ancestor walk surfaces this way.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			requestID := middleware.GetReqID(r.Context())
			slog.Error("PANIC", "request_id", requestID, "path", r.URL.Path, "panic", rec)

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]interface{}{
				"error":      "An internal server error occurred",
				"request_id": requestID,
			})
		}()

		next.ServeHTTP(w, r)
	})
}
