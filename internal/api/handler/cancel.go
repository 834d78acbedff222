package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/forgeworks/campaignforge/internal/api/response"
	"github.com/forgeworks/campaignforge/internal/store"
	"github.com/forgeworks/campaignforge/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Canceller defines the interface the cancel handler depends on.
type Canceller interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	RequestCancel(ctx context.Context, id uuid.UUID) error
}

// NewCancelHandler returns an http.HandlerFunc for
// DELETE /api/v1/campaigns/jobs/{jobID}. Cancellation is a request, not a
// kill: the pipeline honors it at the next stage boundary.
func NewCancelHandler(st Canceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a valid UUID", nil)
			return
		}

		job, err := st.GetJob(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "No job with that id", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		if models.TerminalStatus(job.Status) {
			response.Error(w, http.StatusConflict, "JOB_ALREADY_TERMINAL",
				"The job has already finished", map[string]string{"status": job.Status})
			return
		}

		if err := st.RequestCancel(r.Context(), jobID); err != nil {
			// A job that completed between the read and the update surfaces
			// here as not found.
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusConflict, "JOB_ALREADY_TERMINAL",
					"The job has already finished", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Accepted(w, map[string]string{
			"job_id": jobID.String(),
			"status": "cancel_requested",
		})
	}
}
