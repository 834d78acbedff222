package models

import (
	"time"

	"github.com/google/uuid"
)

// Job statuses. A job moves forward through the pipeline stages in order and
// ends in exactly one of the two terminal statuses.
const (
	JobStatusQueued     = "queued"
	JobStatusExtracting = "extracting"
	JobStatusGenerating = "generating"
	JobStatusPersisting = "persisting"
	JobStatusNotifying  = "notifying"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// TerminalStatus reports whether status is completed or failed.
func TerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// Job tracks one async campaign-suggestion run. The API returns a job id on
// POST /api/v1/campaigns; the client polls GET /api/v1/campaigns/jobs/{id}
// until status is completed or failed.
type Job struct {
	ID              uuid.UUID  `db:"id"                json:"id"`
	Company         string     `db:"company"           json:"company"`
	Goal            string     `db:"goal"              json:"goal"`
	NotifyEmail     string     `db:"notify_email"      json:"notify_email"`
	Status          string     `db:"status"            json:"status"`
	ErrorClass      *string    `db:"error_class"       json:"error_class,omitempty"`
	ErrorMessage    *string    `db:"error_message"     json:"error_message,omitempty"`
	ProfileID       *uuid.UUID `db:"profile_id"        json:"profile_id,omitempty"`
	SuggestionSetID *uuid.UUID `db:"suggestion_set_id" json:"suggestion_set_id,omitempty"`
	CancelRequested bool       `db:"cancel_requested"  json:"cancel_requested"`
	CreatedAt       time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"        json:"updated_at"`
	CompletedAt     *time.Time `db:"completed_at"      json:"completed_at,omitempty"`
}
