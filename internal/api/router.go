package api

import (
	"net/http"

	mw "github.com/forgeworks/campaignforge/internal/api/middleware"
	"github.com/forgeworks/campaignforge/internal/api/response"
	"github.com/go-chi/chi/v5"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler        http.HandlerFunc
	SubmitHandler        http.HandlerFunc
	PollJobHandler       http.HandlerFunc
	CancelJobHandler     http.HandlerFunc
	SuggestionsHandler   http.HandlerFunc
	SuggestionSetHandler http.HandlerFunc
	CreateKeyHandler     http.HandlerFunc
	ListKeysHandler      http.HandlerFunc
	RevokeKeyHandler     http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/campaigns", orNotImplemented(deps.SubmitHandler))
		r.Get("/api/v1/campaigns/jobs/{jobID}", orNotImplemented(deps.PollJobHandler))
		r.Delete("/api/v1/campaigns/jobs/{jobID}", orNotImplemented(deps.CancelJobHandler))

		r.Get("/api/v1/campaigns/suggestions", orNotImplemented(deps.SuggestionsHandler))
		r.Get("/api/v1/campaigns/suggestions/{setID}", orNotImplemented(deps.SuggestionSetHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
