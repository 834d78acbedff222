package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/forgeworks/campaignforge/internal/api/response"
	"github.com/forgeworks/campaignforge/internal/store"
	"github.com/forgeworks/campaignforge/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// JobReader defines the interface the poll handler depends on.
type JobReader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

// NewPollJobHandler returns an http.HandlerFunc for
// GET /api/v1/campaigns/jobs/{jobID}.
func NewPollJobHandler(st JobReader) http.HandlerFunc {
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

		response.JSON(w, toJobResponse(job))
	}
}

type jobResponse struct {
	JobID           string  `json:"job_id"`
	Company         string  `json:"company"`
	Goal            string  `json:"goal,omitempty"`
	Status          string  `json:"status"`
	ErrorClass      *string `json:"error_class,omitempty"`
	ErrorMessage    *string `json:"error_message,omitempty"`
	SuggestionSetID *string `json:"suggestion_set_id,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	CompletedAt     *string `json:"completed_at,omitempty"`
}

func toJobResponse(job *models.Job) jobResponse {
	resp := jobResponse{
		JobID:        job.ID.String(),
		Company:      job.Company,
		Goal:         job.Goal,
		Status:       job.Status,
		ErrorClass:   job.ErrorClass,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if job.SuggestionSetID != nil {
		id := job.SuggestionSetID.String()
		resp.SuggestionSetID = &id
	}
	if job.CompletedAt != nil {
		ts := job.CompletedAt.UTC().Format(time.RFC3339)
		resp.CompletedAt = &ts
	}
	return resp
}
