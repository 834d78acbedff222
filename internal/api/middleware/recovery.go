package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/forgeworks/campaignforge/internal/api/response"
)

// Recovery converts a handler panic into a 500 response. The job pipeline
// carries its own panic handling; this covers the HTTP layer only.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				slog.Error("panic in http handler",
					"panic", v,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "An unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
