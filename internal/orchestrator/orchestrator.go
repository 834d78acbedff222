// Package orchestrator drives a campaign job through its pipeline:
// extract profile, generate suggestions, persist, notify. It owns the job
// lifecycle, the retry policy, and failure containment; every status change
// goes through the store so observers see transitions in commit order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forgeworks/campaignforge/internal/backoff"
	"github.com/forgeworks/campaignforge/internal/cache"
	"github.com/forgeworks/campaignforge/internal/gen"
	"github.com/forgeworks/campaignforge/internal/notify"
	"github.com/forgeworks/campaignforge/internal/profile"
	"github.com/forgeworks/campaignforge/internal/store"
	"github.com/forgeworks/campaignforge/pkg/models"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const statusCacheTTL = 30 * time.Minute

// Config is the orchestrator's immutable policy, fixed at construction.
type Config struct {
	Model         string
	MaxAttempts   int
	Backoff       backoff.Strategy
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration
}

// Orchestrator runs campaign jobs. Safe for concurrent use; re-entrant calls
// for the same job id are collapsed into a single execution.
type Orchestrator struct {
	store     store.Store
	extractor *profile.Extractor
	provider  models.SuggestionProvider
	notifier  notify.Notifier
	cache     cache.Cache
	cfg       Config
	group     singleflight.Group
}

func New(st store.Store, ex *profile.Extractor, provider models.SuggestionProvider, n notify.Notifier, ca cache.Cache, cfg Config) *Orchestrator {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.NewExponential(500*time.Millisecond, 30*time.Second)
	}
	return &Orchestrator{
		store:     st,
		extractor: ex,
		provider:  provider,
		notifier:  n,
		cache:     ca,
		cfg:       cfg,
	}
}

// Submit creates a queued job and dispatches the pipeline in a background
// goroutine. Returns the job immediately without waiting for completion.
func (o *Orchestrator) Submit(ctx context.Context, company, goal, email string) (*models.Job, error) {
	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.New(),
		Company:     profile.Normalize(company),
		Goal:        goal,
		NotifyEmail: email,
		Status:      models.JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	sctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	if err := o.store.CreateJob(sctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	o.cacheStatus(job.ID, models.JobStatusQueued)

	go o.runDetached(job.ID)

	return job, nil
}

// runDetached executes the pipeline outside the request context. It recovers
// from panics and always leaves the job in a terminal state.
func (o *Orchestrator) runDetached(jobID uuid.UUID) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in job pipeline", "error", r, "job_id", jobID)
			o.markFailed(ctx, jobID, models.FailurePersistence, fmt.Sprintf("panic: %v", r))
		}
	}()

	if _, err := o.Run(ctx, jobID); err != nil {
		slog.Error("job pipeline error", "error", err, "job_id", jobID)
	}
}

// Run drives the job to a terminal status, resuming from whatever stage the
// stored status indicates. Invoking Run on a terminal job is a no-op that
// returns the stored state. Concurrent Run calls for the same id share one
// execution.
func (o *Orchestrator) Run(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	v, err, _ := o.group.Do(jobID.String(), func() (any, error) {
		return o.run(ctx, jobID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Job), nil
}

func (o *Orchestrator) run(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	job, err := o.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if models.TerminalStatus(job.Status) {
		return job, nil
	}

	if job.CancelRequested {
		o.markFailed(ctx, jobID, models.FailureCancelled, "cancellation requested")
		return o.getJob(ctx, jobID)
	}

	if job.Status == models.JobStatusQueued {
		if err := o.advance(ctx, jobID, models.JobStatusExtracting); err != nil {
			o.markFailed(ctx, jobID, models.FailurePersistence, err.Error())
			return o.getJob(ctx, jobID)
		}
		job.Status = models.JobStatusExtracting
	}

	// Stage: extracting. On resume past this point the profile is already
	// durable and referenced by the job.
	var prof models.CompanyProfile
	if job.Status == models.JobStatusExtracting {
		prof, err = o.stageExtract(ctx, job)
		if err != nil {
			o.markFailed(ctx, jobID, classify(err), err.Error())
			return o.getJob(ctx, jobID)
		}
		job.Status = models.JobStatusGenerating
	} else {
		if job.ProfileID == nil {
			o.markFailed(ctx, jobID, models.FailurePersistence,
				fmt.Sprintf("job in status %s has no profile reference", job.Status))
			return o.getJob(ctx, jobID)
		}
		p, err := o.getProfile(ctx, *job.ProfileID)
		if err != nil {
			o.markFailed(ctx, jobID, models.FailurePersistence, err.Error())
			return o.getJob(ctx, jobID)
		}
		prof = *p
	}

	if cancelled, job2 := o.cancelBoundary(ctx, jobID); cancelled {
		return job2, nil
	}

	// Stages: generating and persisting. A job found in persisting lost its
	// in-memory suggestion set, so generation re-runs; the deterministic
	// request makes the replay equivalent and the new set supersedes by
	// version.
	if job.Status == models.JobStatusGenerating || job.Status == models.JobStatusPersisting {
		set, err := o.stageGenerate(ctx, job, prof)
		if err != nil {
			o.markFailed(ctx, jobID, classify(err), err.Error())
			return o.getJob(ctx, jobID)
		}

		if job.Status == models.JobStatusGenerating {
			if err := o.advance(ctx, jobID, models.JobStatusPersisting); err != nil {
				o.markFailed(ctx, jobID, models.FailurePersistence, err.Error())
				return o.getJob(ctx, jobID)
			}
		}

		if cancelled, job2 := o.cancelBoundary(ctx, jobID); cancelled {
			return job2, nil
		}

		set.JobID = jobID
		set.ProfileID = prof.ID
		setID, err := o.saveSet(ctx, jobID, &set)
		if err != nil {
			o.markFailed(ctx, jobID, models.FailurePersistence, err.Error())
			return o.getJob(ctx, jobID)
		}
		job.SuggestionSetID = &setID
		job.Status = models.JobStatusNotifying
		o.cacheStatus(jobID, models.JobStatusNotifying)
	}

	// Stage: notifying. A notify failure is logged and nothing more; the job
	// still completes.
	if job.Status == models.JobStatusNotifying {
		if job.SuggestionSetID == nil {
			o.markFailed(ctx, jobID, models.FailurePersistence,
				"job in status notifying has no suggestion set reference")
			return o.getJob(ctx, jobID)
		}
		o.notifyOutcome(ctx, job, notify.Outcome{SuggestionSetID: job.SuggestionSetID})

		if err := o.advance(ctx, jobID, models.JobStatusCompleted); err != nil {
			o.markFailed(ctx, jobID, models.FailurePersistence, err.Error())
			return o.getJob(ctx, jobID)
		}
	}

	return o.getJob(ctx, jobID)
}

// stageExtract validates the identifier, consults the directory (retrying
// transient lookup failures), and persists the profile, advancing the job to
// generating in the same transaction.
func (o *Orchestrator) stageExtract(ctx context.Context, job *models.Job) (models.CompanyProfile, error) {
	var prof models.CompanyProfile
	err := o.withRetry(ctx, func(ctx context.Context) error {
		p, err := o.extractor.Extract(ctx, job.Company)
		if err != nil {
			return err
		}
		prof = p
		return nil
	})
	if err != nil {
		return models.CompanyProfile{}, err
	}

	prof.JobID = job.ID
	sctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	if _, err := o.store.SaveProfile(sctx, job.ID, &prof); err != nil {
		return models.CompanyProfile{}, fmt.Errorf("storing profile: %w", err)
	}
	o.cacheStatus(job.ID, models.JobStatusGenerating)
	return prof, nil
}

// stageGenerate builds the deterministic request and calls the provider,
// retrying unavailable errors with backoff. Parse errors are not retried.
func (o *Orchestrator) stageGenerate(ctx context.Context, job *models.Job, prof models.CompanyProfile) (models.SuggestionSet, error) {
	req := gen.BuildRequest(o.cfg.Model, prof, job.Goal)

	var set models.SuggestionSet
	err := o.withRetry(ctx, func(ctx context.Context) error {
		s, err := o.provider.Generate(ctx, req)
		if err != nil {
			return err
		}
		set = s
		return nil
	})
	if err != nil {
		return models.SuggestionSet{}, err
	}
	return set, nil
}

// withRetry runs fn up to MaxAttempts times, sleeping per the backoff
// schedule between attempts. Only transient errors (directory lookups and
// provider unavailability) are retried; everything else fails immediately.
func (o *Orchestrator) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !retriable(lastErr) || attempt == o.cfg.MaxAttempts {
			return lastErr
		}

		delay := o.cfg.Backoff.Delay(attempt)
		slog.Info("retrying after transient failure",
			"error", lastErr, "attempt", attempt, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}

func retriable(err error) bool {
	return errors.Is(err, gen.ErrProviderUnavailable) ||
		errors.Is(err, profile.ErrDirectoryUnavailable)
}

// classify maps a stage error to the failure class persisted on the job.
func classify(err error) string {
	switch {
	case errors.Is(err, profile.ErrInvalidIdentifier):
		return models.FailureValidation
	case errors.Is(err, profile.ErrDirectoryUnavailable):
		return models.FailureDependency
	case errors.Is(err, gen.ErrMalformedResponse):
		return models.FailureGenerationParse
	case errors.Is(err, gen.ErrProviderUnavailable):
		return models.FailureGenerationUnavailable
	default:
		return models.FailurePersistence
	}
}

// cancelBoundary re-reads the job between stages and fails it with the
// cancelled class when cancellation was requested. Mid-flight calls are not
// interrupted; they are time-bounded, so cancellation lands here.
func (o *Orchestrator) cancelBoundary(ctx context.Context, jobID uuid.UUID) (bool, *models.Job) {
	job, err := o.getJob(ctx, jobID)
	if err != nil {
		slog.Error("cancel check failed", "error", err, "job_id", jobID)
		return false, nil
	}
	if !job.CancelRequested {
		return false, nil
	}
	o.markFailed(ctx, jobID, models.FailureCancelled, "cancellation requested")
	job, _ = o.getJob(ctx, jobID)
	return true, job
}

// markFailed moves the job to failed with its classification and sends the
// best-effort failure notification for pipeline faults. Validation failures
// surface synchronously to the submitter and cancellations are
// caller-initiated, so neither sends email. If the failure itself cannot be
// written the job's true state is unknown to observers; that is the one case
// that escalates to error-level logging instead of a status resolution.
func (o *Orchestrator) markFailed(ctx context.Context, jobID uuid.UUID, class, msg string) {
	sctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	err := o.store.UpdateJobStatus(sctx, jobID, models.JobStatusFailed,
		store.WithErrorClass(class), store.WithErrorMessage(msg))
	if err != nil {
		slog.Error("failed to record job failure; job state unknown",
			"error", err, "job_id", jobID, "class", class, "message", msg)
		return
	}
	o.cacheStatus(jobID, models.JobStatusFailed)

	if class == models.FailureValidation || class == models.FailureCancelled {
		return
	}
	if job, err := o.getJob(ctx, jobID); err == nil {
		o.notifyOutcome(ctx, job, notify.Outcome{ErrorClass: class, ErrorMessage: msg})
	}
}

// notifyOutcome is fire-and-forget: failures are logged and never affect the
// job.
func (o *Orchestrator) notifyOutcome(ctx context.Context, job *models.Job, outcome notify.Outcome) {
	nctx, cancel := context.WithTimeout(ctx, o.cfg.NotifyTimeout)
	defer cancel()
	if err := o.notifier.Notify(nctx, job, outcome); err != nil {
		slog.Warn("notification failed",
			"error", err, "job_id", job.ID, "class", models.FailureNotify)
	}
}

func (o *Orchestrator) advance(ctx context.Context, jobID uuid.UUID, status string) error {
	sctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	if err := o.store.UpdateJobStatus(sctx, jobID, status); err != nil {
		return fmt.Errorf("advancing to %s: %w", status, err)
	}
	o.cacheStatus(jobID, status)
	return nil
}

func (o *Orchestrator) getJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	sctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	return o.store.GetJob(sctx, jobID)
}

func (o *Orchestrator) getProfile(ctx context.Context, id uuid.UUID) (*models.CompanyProfile, error) {
	sctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	return o.store.GetProfile(sctx, id)
}

func (o *Orchestrator) saveSet(ctx context.Context, jobID uuid.UUID, set *models.SuggestionSet) (uuid.UUID, error) {
	sctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()
	return o.store.SaveSuggestionSet(sctx, jobID, set)
}

func (o *Orchestrator) cacheStatus(jobID uuid.UUID, status string) {
	if o.cache == nil {
		return
	}
	_ = o.cache.SetJobStatus(context.Background(), jobID, status, statusCacheTTL)
}
