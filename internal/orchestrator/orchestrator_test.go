package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/forgeworks/campaignforge/internal/backoff"
	"github.com/forgeworks/campaignforge/internal/gen"
	"github.com/forgeworks/campaignforge/internal/notify"
	"github.com/forgeworks/campaignforge/internal/profile"
	"github.com/forgeworks/campaignforge/internal/store"
	"github.com/forgeworks/campaignforge/pkg/models"
	"github.com/google/uuid"
)

// --- mocks ---

type mockStore struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*models.Job
	profiles map[uuid.UUID]*models.CompanyProfile
	sets     map[uuid.UUID]*models.SuggestionSet

	// statusHistory records every committed status, including the advances
	// bundled into SaveProfile and SaveSuggestionSet.
	statusHistory []string
	failureClass  *string

	directory    map[string]*models.DirectoryEntry
	directoryErr error
	lookupCalls  int
	lookupHook   func()

	updateStatusErr error
	saveSetErr      error
}

func newMockStore() *mockStore {
	return &mockStore{
		jobs:      make(map[uuid.UUID]*models.Job),
		profiles:  make(map[uuid.UUID]*models.CompanyProfile),
		sets:      make(map[uuid.UUID]*models.SuggestionSet),
		directory: make(map[string]*models.DirectoryEntry),
	}
}

func (s *mockStore) Ping(_ context.Context) error { return nil }

func (s *mockStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	s.statusHistory = append(s.statusHistory, job.Status)
	return nil
}

func (s *mockStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *mockStore) UpdateJobStatus(_ context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	if s.updateStatusErr != nil {
		return s.updateStatusErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	upd := store.ApplyJobUpdateOptions(opts)
	job.Status = status
	job.ErrorClass = upd.ErrorClass
	job.ErrorMessage = upd.ErrorMessage
	if models.TerminalStatus(status) {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	if upd.ErrorClass != nil {
		s.failureClass = upd.ErrorClass
	}
	s.statusHistory = append(s.statusHistory, status)
	return nil
}

func (s *mockStore) RequestCancel(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || models.TerminalStatus(job.Status) {
		return store.ErrNotFound
	}
	job.CancelRequested = true
	return nil
}

func (s *mockStore) SaveProfile(_ context.Context, jobID uuid.UUID, p *models.CompanyProfile) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return uuid.Nil, store.ErrNotFound
	}
	cp := *p
	s.profiles[p.ID] = &cp
	job.ProfileID = &cp.ID
	job.Status = models.JobStatusGenerating
	s.statusHistory = append(s.statusHistory, models.JobStatusGenerating)
	return cp.ID, nil
}

func (s *mockStore) GetProfile(_ context.Context, id uuid.UUID) (*models.CompanyProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *mockStore) SaveSuggestionSet(_ context.Context, jobID uuid.UUID, set *models.SuggestionSet) (uuid.UUID, error) {
	if s.saveSetErr != nil {
		return uuid.Nil, s.saveSetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return uuid.Nil, store.ErrNotFound
	}
	version := 1
	for _, existing := range s.sets {
		if existing.JobID == jobID && existing.Version >= version {
			version = existing.Version + 1
		}
	}
	cp := *set
	cp.ID = uuid.New()
	cp.Version = version
	s.sets[cp.ID] = &cp
	set.ID = cp.ID
	set.Version = version
	job.SuggestionSetID = &cp.ID
	job.Status = models.JobStatusNotifying
	s.statusHistory = append(s.statusHistory, models.JobStatusNotifying)
	return cp.ID, nil
}

func (s *mockStore) GetSuggestionSet(_ context.Context, id uuid.UUID) (*models.SuggestionSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *set
	return &cp, nil
}

func (s *mockStore) LatestSuggestionSetByCompany(_ context.Context, _ string) (*models.SuggestionSet, error) {
	return nil, store.ErrNotFound
}

func (s *mockStore) LookupDirectory(_ context.Context, companyName string) (*models.DirectoryEntry, error) {
	s.mu.Lock()
	s.lookupCalls++
	err := s.directoryErr
	entry, ok := s.directory[companyName]
	hook := s.lookupHook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

func (s *mockStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *mockStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *mockStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *mockStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error)   { return nil, nil }
func (s *mockStore) RevokeAPIKey(_ context.Context, _ uuid.UUID) error         { return nil }

func (s *mockStore) history() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.statusHistory))
	copy(out, s.statusHistory)
	return out
}

type countingProvider struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, req models.GenerationRequest) (models.SuggestionSet, error)
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Generate(ctx context.Context, req models.GenerationRequest) (models.SuggestionSet, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return p.fn(ctx, req)
}

func (p *countingProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func okProvider() *countingProvider {
	return &countingProvider{fn: func(_ context.Context, _ models.GenerationRequest) (models.SuggestionSet, error) {
		return models.SuggestionSet{
			Provider: "counting",
			Model:    "test-model",
			Suggestions: []models.Suggestion{
				{Position: 0, Title: "Referral program", Rationale: "r", Channel: "email"},
				{Position: 1, Title: "Demo videos", Rationale: "r", Channel: "social"},
				{Position: 2, Title: "Founder series", Rationale: "r", Channel: "blog"},
			},
		}, nil
	}}
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []notify.Outcome
	err      error
}

func (n *recordingNotifier) Notify(_ context.Context, _ *models.Job, outcome notify.Outcome) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, outcome)
	return n.err
}

func (n *recordingNotifier) sent() []notify.Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Outcome, len(n.outcomes))
	copy(out, n.outcomes)
	return out
}

// --- helpers ---

func testOrchestrator(st *mockStore, provider models.SuggestionProvider, n notify.Notifier) *Orchestrator {
	return New(st, profile.NewExtractor(st), provider, n, nil, Config{
		Model:         "test-model",
		MaxAttempts:   3,
		Backoff:       backoff.NewExponential(time.Millisecond, time.Millisecond),
		StoreTimeout:  5 * time.Second,
		NotifyTimeout: 5 * time.Second,
	})
}

func seedJob(st *mockStore, status string) *models.Job {
	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.New(),
		Company:     "acme.com",
		Goal:        "grow newsletter signups",
		NotifyEmail: "owner@acme.com",
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_ = st.CreateJob(context.Background(), job)
	return job
}

func seedDirectory(st *mockStore) {
	st.directory["acme"] = &models.DirectoryEntry{
		CompanyName:     "acme",
		BrandVoice:      "confident",
		TargetAudience:  "mid-market ops teams",
		ProductCategory: "industrial supplies",
		StyleGuide:      "short sentences",
	}
}

func waitForTerminal(t *testing.T, st *mockStore, jobID uuid.UUID) *models.Job {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		job, err := st.GetJob(context.Background(), jobID)
		if err == nil && models.TerminalStatus(job.Status) {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for job %s to reach a terminal status", jobID)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// --- Submit tests ---

func TestSubmit_ReturnsJobImmediately(t *testing.T) {
	st := newMockStore()
	seedDirectory(st)
	provider := &countingProvider{fn: func(_ context.Context, req models.GenerationRequest) (models.SuggestionSet, error) {
		time.Sleep(100 * time.Millisecond)
		return okProvider().fn(context.Background(), req)
	}}
	o := testOrchestrator(st, provider, &recordingNotifier{})

	start := time.Now()
	job, err := o.Submit(context.Background(), "acme.com", "grow signups", "owner@acme.com")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != models.JobStatusQueued {
		t.Errorf("expected status queued, got %s", job.Status)
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("Submit should return immediately, took %v", elapsed)
	}

	final := waitForTerminal(t, st, job.ID)
	if final.Status != models.JobStatusCompleted {
		t.Errorf("expected completed, got %s", final.Status)
	}
}

func TestSubmit_NormalizesCompany(t *testing.T) {
	st := newMockStore()
	seedDirectory(st)
	o := testOrchestrator(st, okProvider(), &recordingNotifier{})

	job, err := o.Submit(context.Background(), "https://WWW.Acme.com/about?ref=x", "", "owner@acme.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Company != "acme.com" {
		t.Errorf("expected normalized company acme.com, got %q", job.Company)
	}
	waitForTerminal(t, st, job.ID)
}

// --- pipeline tests ---

func TestRun_HappyPath(t *testing.T) {
	st := newMockStore()
	seedDirectory(st)
	provider := okProvider()
	notifier := &recordingNotifier{}
	o := testOrchestrator(st, provider, notifier)

	job := seedJob(st, models.JobStatusQueued)
	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if final.Status != models.JobStatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.ProfileID == nil {
		t.Error("expected a profile reference on the completed job")
	}
	if final.SuggestionSetID == nil {
		t.Fatal("expected a suggestion set reference on the completed job")
	}
	if final.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	prof, err := st.GetProfile(context.Background(), *final.ProfileID)
	if err != nil {
		t.Fatalf("stored profile missing: %v", err)
	}
	if prof.Industry != "industrial supplies" {
		t.Errorf("expected directory-enriched industry, got %q", prof.Industry)
	}

	set, err := st.GetSuggestionSet(context.Background(), *final.SuggestionSetID)
	if err != nil {
		t.Fatalf("stored suggestion set missing: %v", err)
	}
	if len(set.Suggestions) != 3 {
		t.Errorf("expected 3 suggestions, got %d", len(set.Suggestions))
	}
	if set.Version != 1 {
		t.Errorf("expected version 1, got %d", set.Version)
	}

	sent := notifier.sent()
	if len(sent) != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", len(sent))
	}
	if !sent[0].Succeeded() {
		t.Error("expected a success notification")
	}

	want := []string{
		models.JobStatusQueued,
		models.JobStatusExtracting,
		models.JobStatusGenerating,
		models.JobStatusPersisting,
		models.JobStatusNotifying,
		models.JobStatusCompleted,
	}
	got := st.history()
	if len(got) != len(want) {
		t.Fatalf("expected status history %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("status history diverges at %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestRun_DirectoryMissStillCompletes(t *testing.T) {
	st := newMockStore() // empty directory
	notifier := &recordingNotifier{}
	o := testOrchestrator(st, okProvider(), notifier)

	job := seedJob(st, models.JobStatusQueued)
	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}

	prof, err := st.GetProfile(context.Background(), *final.ProfileID)
	if err != nil {
		t.Fatalf("stored profile missing: %v", err)
	}
	if prof.Industry != "" {
		t.Errorf("expected synthesized profile without industry, got %q", prof.Industry)
	}
	if prof.Name != "Acme" {
		t.Errorf("expected display name Acme, got %q", prof.Name)
	}
}

func TestRun_InvalidIdentifier(t *testing.T) {
	st := newMockStore()
	provider := okProvider()
	notifier := &recordingNotifier{}
	o := testOrchestrator(st, provider, notifier)

	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.New(),
		Company:     "not a domain!!",
		NotifyEmail: "owner@acme.com",
		Status:      models.JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_ = st.CreateJob(context.Background(), job)

	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.ErrorClass == nil || *final.ErrorClass != models.FailureValidation {
		t.Errorf("expected error class %s, got %v", models.FailureValidation, final.ErrorClass)
	}
	if provider.callCount() != 0 {
		t.Errorf("generation must not run for an invalid identifier, got %d calls", provider.callCount())
	}
	if sent := notifier.sent(); len(sent) != 0 {
		t.Errorf("validation failures must not notify, got %d notifications", len(sent))
	}
}

func TestRun_EmptyIdentifierDoesNotNotify(t *testing.T) {
	st := newMockStore()
	provider := okProvider()
	notifier := &recordingNotifier{}
	o := testOrchestrator(st, provider, notifier)

	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.New(),
		Company:     "",
		NotifyEmail: "owner@acme.com",
		Status:      models.JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_ = st.CreateJob(context.Background(), job)

	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.ErrorClass == nil || *final.ErrorClass != models.FailureValidation {
		t.Errorf("expected error class %s, got %v", models.FailureValidation, final.ErrorClass)
	}
	if provider.callCount() != 0 {
		t.Errorf("generation must not run for an empty identifier, got %d calls", provider.callCount())
	}
	if sent := notifier.sent(); len(sent) != 0 {
		t.Errorf("validation failures must not notify, got %d notifications", len(sent))
	}
}

func TestRun_MalformedResponseIsNotRetried(t *testing.T) {
	st := newMockStore()
	seedDirectory(st)
	provider := &countingProvider{fn: func(_ context.Context, _ models.GenerationRequest) (models.SuggestionSet, error) {
		return models.SuggestionSet{}, fmt.Errorf("%w: empty suggestion list", gen.ErrMalformedResponse)
	}}
	o := testOrchestrator(st, provider, &recordingNotifier{})

	job := seedJob(st, models.JobStatusQueued)
	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.ErrorClass == nil || *final.ErrorClass != models.FailureGenerationParse {
		t.Errorf("expected error class %s, got %v", models.FailureGenerationParse, final.ErrorClass)
	}
	if provider.callCount() != 1 {
		t.Errorf("parse failures are deterministic, expected exactly 1 call, got %d", provider.callCount())
	}
}

func TestRun_RetriesProviderUnavailable(t *testing.T) {
	st := newMockStore()
	seedDirectory(st)
	var attempts int
	provider := &countingProvider{}
	provider.fn = func(ctx context.Context, req models.GenerationRequest) (models.SuggestionSet, error) {
		attempts++
		if attempts < 3 {
			return models.SuggestionSet{}, gen.ErrProviderUnavailable
		}
		return okProvider().fn(ctx, req)
	}
	o := testOrchestrator(st, provider, &recordingNotifier{})

	job := seedJob(st, models.JobStatusQueued)
	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("expected completed after retries, got %s", final.Status)
	}
	if provider.callCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", provider.callCount())
	}
}

func TestRun_RetryBudgetExhausted(t *testing.T) {
	st := newMockStore()
	seedDirectory(st)
	provider := &countingProvider{fn: func(_ context.Context, _ models.GenerationRequest) (models.SuggestionSet, error) {
		return models.SuggestionSet{}, gen.ErrProviderUnavailable
	}}
	notifier := &recordingNotifier{}
	o := testOrchestrator(st, provider, notifier)

	job := seedJob(st, models.JobStatusQueued)
	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.ErrorClass == nil || *final.ErrorClass != models.FailureGenerationUnavailable {
		t.Errorf("expected error class %s, got %v", models.FailureGenerationUnavailable, final.ErrorClass)
	}
	if provider.callCount() != 3 {
		t.Errorf("expected MaxAttempts=3 calls, got %d", provider.callCount())
	}

	sent := notifier.sent()
	if len(sent) != 1 {
		t.Fatalf("expected exactly 1 failure notification, got %d", len(sent))
	}
	if sent[0].Succeeded() || sent[0].ErrorClass != models.FailureGenerationUnavailable {
		t.Errorf("expected failure notification with class %s, got %+v",
			models.FailureGenerationUnavailable, sent[0])
	}
}

func TestRun_DirectoryUnavailableRetries(t *testing.T) {
	st := newMockStore()
	seedDirectory(st)
	st.directoryErr = errors.New("connection refused")
	notifier := &recordingNotifier{}
	o := testOrchestrator(st, okProvider(), notifier)

	// Clear the error after the first failed lookup so the retry succeeds.
	st.lookupHook = func() {
		st.mu.Lock()
		st.directoryErr = nil
		st.mu.Unlock()
	}

	job := seedJob(st, models.JobStatusQueued)
	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("expected completed after directory retry, got %s", final.Status)
	}
}

func TestRun_NotifyFailureDoesNotFailJob(t *testing.T) {
	st := newMockStore()
	seedDirectory(st)
	notifier := &recordingNotifier{err: notify.ErrSendFailed}
	o := testOrchestrator(st, okProvider(), notifier)

	job := seedJob(st, models.JobStatusQueued)
	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("a notification failure must not fail the job, got %s", final.Status)
	}
	if final.SuggestionSetID == nil {
		t.Error("expected the suggestion set reference to survive the notify failure")
	}
}

func TestRun_TerminalJobIsNoOp(t *testing.T) {
	st := newMockStore()
	provider := okProvider()
	notifier := &recordingNotifier{}
	o := testOrchestrator(st, provider, notifier)

	job := seedJob(st, models.JobStatusCompleted)
	before := len(st.history())

	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != models.JobStatusCompleted {
		t.Errorf("expected completed, got %s", final.Status)
	}
	if provider.callCount() != 0 {
		t.Errorf("re-running a terminal job must not regenerate, got %d calls", provider.callCount())
	}
	if len(notifier.sent()) != 0 {
		t.Errorf("re-running a terminal job must not re-notify, got %d", len(notifier.sent()))
	}
	if len(st.history()) != before {
		t.Errorf("expected no status writes, history grew from %d to %d", before, len(st.history()))
	}
}

func TestRun_ResumeFromPersisting(t *testing.T) {
	st := newMockStore()
	seedDirectory(st)
	provider := okProvider()
	o := testOrchestrator(st, provider, &recordingNotifier{})

	job := seedJob(st, models.JobStatusPersisting)
	prof := &models.CompanyProfile{
		ID:        uuid.New(),
		JobID:     job.ID,
		Name:      "Acme",
		Domain:    "acme.com",
		CreatedAt: time.Now().UTC(),
	}
	st.profiles[prof.ID] = prof
	st.jobs[job.ID].ProfileID = &prof.ID

	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("expected completed after resume, got %s", final.Status)
	}
	if provider.callCount() != 1 {
		t.Errorf("resume from persisting regenerates once, got %d calls", provider.callCount())
	}
	if final.SuggestionSetID == nil {
		t.Fatal("expected a suggestion set reference after resume")
	}
}

func TestRun_ResumeWritesNewVersion(t *testing.T) {
	st := newMockStore()
	seedDirectory(st)
	o := testOrchestrator(st, okProvider(), &recordingNotifier{})

	job := seedJob(st, models.JobStatusPersisting)
	prof := &models.CompanyProfile{ID: uuid.New(), JobID: job.ID, Name: "Acme", Domain: "acme.com"}
	st.profiles[prof.ID] = prof
	st.jobs[job.ID].ProfileID = &prof.ID

	// An earlier attempt already persisted version 1 before the crash.
	stale := &models.SuggestionSet{ID: uuid.New(), JobID: job.ID, ProfileID: prof.ID, Version: 1}
	st.sets[stale.ID] = stale

	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	set, err := st.GetSuggestionSet(context.Background(), *final.SuggestionSetID)
	if err != nil {
		t.Fatalf("stored suggestion set missing: %v", err)
	}
	if set.Version != 2 {
		t.Errorf("expected the replay to supersede with version 2, got %d", set.Version)
	}
}

func TestRun_CancelBeforeStart(t *testing.T) {
	st := newMockStore()
	seedDirectory(st)
	provider := okProvider()
	notifier := &recordingNotifier{}
	o := testOrchestrator(st, provider, notifier)

	job := seedJob(st, models.JobStatusQueued)
	st.jobs[job.ID].CancelRequested = true

	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.ErrorClass == nil || *final.ErrorClass != models.FailureCancelled {
		t.Errorf("expected error class %s, got %v", models.FailureCancelled, final.ErrorClass)
	}
	if provider.callCount() != 0 {
		t.Errorf("a cancelled job must not generate, got %d calls", provider.callCount())
	}
	if sent := notifier.sent(); len(sent) != 0 {
		t.Errorf("cancellation must not notify, got %d notifications", len(sent))
	}
}

func TestRun_CancelAtStageBoundary(t *testing.T) {
	st := newMockStore()
	seedDirectory(st)
	provider := okProvider()
	o := testOrchestrator(st, provider, &recordingNotifier{})

	job := seedJob(st, models.JobStatusQueued)
	// Cancellation lands while extraction is in flight; the pipeline honors
	// it at the next boundary, before generation.
	st.lookupHook = func() {
		_ = st.RequestCancel(context.Background(), job.ID)
	}

	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.ErrorClass == nil || *final.ErrorClass != models.FailureCancelled {
		t.Errorf("expected error class %s, got %v", models.FailureCancelled, final.ErrorClass)
	}
	if provider.callCount() != 0 {
		t.Errorf("a cancelled job must not generate, got %d calls", provider.callCount())
	}
}

func TestRun_PersistFailureMarksJob(t *testing.T) {
	st := newMockStore()
	seedDirectory(st)
	st.saveSetErr = errors.New("disk full")
	o := testOrchestrator(st, okProvider(), &recordingNotifier{})

	job := seedJob(st, models.JobStatusQueued)
	final, err := o.Run(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.ErrorClass == nil || *final.ErrorClass != models.FailurePersistence {
		t.Errorf("expected error class %s, got %v", models.FailurePersistence, final.ErrorClass)
	}
}

func TestRun_DeterministicRequest(t *testing.T) {
	st := newMockStore()
	seedDirectory(st)
	var seen []models.GenerationRequest
	var mu sync.Mutex
	provider := &countingProvider{fn: func(ctx context.Context, req models.GenerationRequest) (models.SuggestionSet, error) {
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()
		if len(seen) == 1 {
			return models.SuggestionSet{}, gen.ErrProviderUnavailable
		}
		return okProvider().fn(ctx, req)
	}}
	o := testOrchestrator(st, provider, &recordingNotifier{})

	job := seedJob(st, models.JobStatusQueued)
	if _, err := o.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 generation attempts, got %d", len(seen))
	}
	if seen[0] != seen[1] {
		t.Errorf("retry must replay the identical request:\nfirst:  %+v\nsecond: %+v", seen[0], seen[1])
	}
}
