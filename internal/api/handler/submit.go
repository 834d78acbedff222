package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/forgeworks/campaignforge/internal/api/response"
	"github.com/forgeworks/campaignforge/pkg/models"
	"github.com/go-playground/validator/v10"
)

// Submitter defines the interface the submit handler depends on.
type Submitter interface {
	Submit(ctx context.Context, company, goal, email string) (*models.Job, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type submitRequest struct {
	Company     string `json:"company"      validate:"required,max=253"`
	Goal        string `json:"goal"         validate:"max=500"`
	NotifyEmail string `json:"notify_email" validate:"required,email"`
}

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/campaigns.
// The pipeline runs in the background; the response carries the job id the
// client polls for the outcome.
func NewSubmitHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if err := validate.Struct(req); err != nil {
			details := map[string]string{}
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				for _, fe := range verrs {
					details[fe.Field()] = fe.Tag()
				}
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"Request validation failed", details)
			return
		}

		job, err := svc.Submit(r.Context(), req.Company, req.Goal, req.NotifyEmail)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not enqueue the campaign job", nil)
			return
		}

		response.Accepted(w, submitResponse{
			JobID:   job.ID.String(),
			Status:  job.Status,
			Company: job.Company,
		})
	}
}

type submitResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Company string `json:"company"`
}
