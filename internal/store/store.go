package store

import (
	"context"
	"errors"

	"github.com/forgeworks/campaignforge/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through
// here; nothing mutates jobs, profiles, or suggestion sets outside a Store
// call.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
	RequestCancel(ctx context.Context, id uuid.UUID) error

	// SaveProfile persists the extracted profile and advances the job from
	// extracting to generating in the same transaction, so a reader never
	// sees status=generating without a stored profile.
	SaveProfile(ctx context.Context, jobID uuid.UUID, profile *models.CompanyProfile) (uuid.UUID, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*models.CompanyProfile, error)

	// SaveSuggestionSet persists the set with its suggestions and advances
	// the job from persisting to notifying in the same transaction.
	SaveSuggestionSet(ctx context.Context, jobID uuid.UUID, set *models.SuggestionSet) (uuid.UUID, error)
	GetSuggestionSet(ctx context.Context, id uuid.UUID) (*models.SuggestionSet, error)
	LatestSuggestionSetByCompany(ctx context.Context, company string) (*models.SuggestionSet, error)

	LookupDirectory(ctx context.Context, companyName string) (*models.DirectoryEntry, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// JobUpdate carries the optional fields of an UpdateJobStatus call.
type JobUpdate struct {
	ErrorClass   *string
	ErrorMessage *string
}

type JobUpdateOption func(*JobUpdate)

// ApplyJobUpdateOptions folds opts into a JobUpdate. Store implementations
// and test doubles use it to read the optional fields.
func ApplyJobUpdateOptions(opts []JobUpdateOption) JobUpdate {
	var u JobUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func WithErrorClass(class string) JobUpdateOption {
	return func(u *JobUpdate) {
		u.ErrorClass = &class
	}
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(u *JobUpdate) {
		u.ErrorMessage = &msg
	}
}
