package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/forgeworks/campaignforge/internal/api/response"
	"github.com/forgeworks/campaignforge/internal/cache"
	"github.com/forgeworks/campaignforge/internal/profile"
	"github.com/forgeworks/campaignforge/internal/store"
	"github.com/forgeworks/campaignforge/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const suggestionsCacheTTL = 5 * time.Minute

// SuggestionReader defines the interface the suggestions handler depends on.
type SuggestionReader interface {
	LatestSuggestionSetByCompany(ctx context.Context, company string) (*models.SuggestionSet, error)
}

// NewSuggestionsHandler returns an http.HandlerFunc for
// GET /api/v1/campaigns/suggestions?company=<identifier>. It serves the
// latest completed suggestion set for the company, cached briefly since sets
// are immutable.
func NewSuggestionsHandler(st SuggestionReader, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		company := profile.Normalize(r.URL.Query().Get("company"))
		if company == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "company is required", nil)
			return
		}

		key := cache.SuggestionsKey(company)
		if ca != nil {
			if b, ok, err := ca.Get(r.Context(), key); err == nil && ok {
				var set models.SuggestionSet
				if json.Unmarshal(b, &set) == nil {
					response.JSON(w, toSuggestionsResponse(&set))
					return
				}
			}
		}

		set, err := st.LatestSuggestionSetByCompany(r.Context(), company)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NO_SUGGESTIONS",
					"No completed suggestions for that company", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		if ca != nil {
			if b, err := json.Marshal(set); err == nil {
				_ = ca.Set(r.Context(), key, b, suggestionsCacheTTL)
			}
		}

		response.JSON(w, toSuggestionsResponse(set))
	}
}

// SuggestionSetReader defines the interface the set-by-id handler depends on.
type SuggestionSetReader interface {
	GetSuggestionSet(ctx context.Context, id uuid.UUID) (*models.SuggestionSet, error)
}

// NewSuggestionSetHandler returns an http.HandlerFunc for
// GET /api/v1/campaigns/suggestions/{setID}. Notification emails reference a
// set by id; this endpoint retrieves that exact set, including versions that
// a newer regeneration has superseded.
func NewSuggestionSetHandler(st SuggestionSetReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setID, err := uuid.Parse(chi.URLParam(r, "setID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid suggestion set ID", nil)
			return
		}

		set, err := st.GetSuggestionSet(r.Context(), setID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "SET_NOT_FOUND", "Suggestion set not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, toSuggestionsResponse(set))
	}
}

type suggestionsResponse struct {
	SetID       string              `json:"set_id"`
	JobID       string              `json:"job_id"`
	Version     int                 `json:"version"`
	Provider    string              `json:"provider"`
	Model       string              `json:"model"`
	Suggestions []models.Suggestion `json:"suggestions"`
	CreatedAt   string              `json:"created_at"`
}

func toSuggestionsResponse(set *models.SuggestionSet) suggestionsResponse {
	return suggestionsResponse{
		SetID:       set.ID.String(),
		JobID:       set.JobID.String(),
		Version:     set.Version,
		Provider:    set.Provider,
		Model:       set.Model,
		Suggestions: set.Suggestions,
		CreatedAt:   set.CreatedAt.UTC().Format(time.RFC3339),
	}
}
