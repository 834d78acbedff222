// Package notify delivers best-effort completion notifications. Failures
// here are logged by the caller and never affect job state.
package notify

import (
	"context"
	"errors"

	"github.com/forgeworks/campaignforge/pkg/models"
	"github.com/google/uuid"
)

var (
	ErrNotConfigured = errors.New("notifier credentials not configured")
	ErrSendFailed    = errors.New("notification send failed")
)

// Outcome summarizes a finished job for the recipient. Exactly one of
// SuggestionSetID (success) or ErrorClass/ErrorMessage (failure) is set.
type Outcome struct {
	SuggestionSetID *uuid.UUID
	ErrorClass      string
	ErrorMessage    string
}

// Succeeded reports whether the outcome carries a result reference.
func (o Outcome) Succeeded() bool { return o.SuggestionSetID != nil }

// Notifier is the capability interface for the mail transport.
type Notifier interface {
	Notify(ctx context.Context, job *models.Job, outcome Outcome) error
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, job *models.Job, outcome Outcome) error

func (f Func) Notify(ctx context.Context, job *models.Job, outcome Outcome) error {
	return f(ctx, job, outcome)
}
