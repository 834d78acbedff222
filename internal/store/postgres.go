package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forgeworks/campaignforge/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, company, goal, notify_email, status, error_class, error_message,
	 profile_id, suggestion_set_id, cancel_requested, created_at, updated_at, completed_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.Company, &j.Goal, &j.NotifyEmail, &j.Status, &j.ErrorClass,
		&j.ErrorMessage, &j.ProfileID, &j.SuggestionSetID, &j.CancelRequested,
		&j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, company, goal, notify_email, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.Company, job.Goal, job.NotifyEmail, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

// validTransitions is the job state graph. Transitions are monotonic; a
// terminal status has no outgoing edges.
var validTransitions = map[string][]string{
	models.JobStatusQueued:     {models.JobStatusExtracting, models.JobStatusFailed},
	models.JobStatusExtracting: {models.JobStatusGenerating, models.JobStatusFailed},
	models.JobStatusGenerating: {models.JobStatusPersisting, models.JobStatusFailed},
	models.JobStatusPersisting: {models.JobStatusNotifying, models.JobStatusFailed},
	models.JobStatusNotifying:  {models.JobStatusCompleted, models.JobStatusFailed},
}

func transitionAllowed(from, to string) bool {
	for _, a := range validTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

// UpdateJobStatus is the only status mutation point. It locks the row,
// validates the transition against the state graph, and applies the update
// in one transaction. An invalid transition fails loudly rather than being
// dropped.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := ApplyJobUpdateOptions(opts)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentStatus string
	err = tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	if !transitionAllowed(currentStatus, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if models.TerminalStatus(status) {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorClass != nil {
		query += fmt.Sprintf(", error_class = $%d", argIdx)
		args = append(args, *params.ErrorClass)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}

	query += " WHERE id = $1"

	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}
	return nil
}

func (s *PostgresStore) RequestCancel(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET cancel_requested = TRUE, updated_at = NOW()
		 WHERE id = $1 AND status NOT IN ($2, $3)`,
		id, models.JobStatusCompleted, models.JobStatusFailed)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Company profiles ---

func (s *PostgresStore) SaveProfile(ctx context.Context, jobID uuid.UUID, profile *models.CompanyProfile) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin save profile: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentStatus string
	err = tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get job status: %w", err)
	}
	if !transitionAllowed(currentStatus, models.JobStatusGenerating) {
		return uuid.Nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, models.JobStatusGenerating)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO company_profiles (id, job_id, name, domain, industry, description, source_input, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		profile.ID, jobID, profile.Name, profile.Domain, profile.Industry,
		profile.Description, profile.SourceInput, profile.CreatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert profile: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE jobs SET status = $2, profile_id = $3, updated_at = $4 WHERE id = $1`,
		jobID, models.JobStatusGenerating, profile.ID, time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("advance job after profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit save profile: %w", err)
	}
	return profile.ID, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, id uuid.UUID) (*models.CompanyProfile, error) {
	var p models.CompanyProfile
	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, name, domain, industry, description, source_input, created_at
		 FROM company_profiles WHERE id = $1`, id,
	).Scan(&p.ID, &p.JobID, &p.Name, &p.Domain, &p.Industry, &p.Description, &p.SourceInput, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// --- Suggestion sets ---

func (s *PostgresStore) SaveSuggestionSet(ctx context.Context, jobID uuid.UUID, set *models.SuggestionSet) (uuid.UUID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin save suggestions: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentStatus string
	err = tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, jobID).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("get job status: %w", err)
	}
	if !transitionAllowed(currentStatus, models.JobStatusNotifying) {
		return uuid.Nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, models.JobStatusNotifying)
	}

	// A regenerated set supersedes earlier versions rather than mutating them.
	var version int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM suggestion_sets WHERE job_id = $1`, jobID,
	).Scan(&version)
	if err != nil {
		return uuid.Nil, fmt.Errorf("next set version: %w", err)
	}
	set.Version = version

	_, err = tx.Exec(ctx,
		`INSERT INTO suggestion_sets (id, job_id, profile_id, version, provider, model, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		set.ID, jobID, set.ProfileID, set.Version, set.Provider, set.Model, set.CreatedAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert suggestion set: %w", err)
	}

	for _, sg := range set.Suggestions {
		_, err = tx.Exec(ctx,
			`INSERT INTO suggestions (set_id, position, title, rationale, channel)
			 VALUES ($1, $2, $3, $4, $5)`,
			set.ID, sg.Position, sg.Title, sg.Rationale, sg.Channel)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert suggestion: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE jobs SET status = $2, suggestion_set_id = $3, updated_at = $4 WHERE id = $1`,
		jobID, models.JobStatusNotifying, set.ID, time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("advance job after suggestions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit save suggestions: %w", err)
	}
	return set.ID, nil
}

func (s *PostgresStore) GetSuggestionSet(ctx context.Context, id uuid.UUID) (*models.SuggestionSet, error) {
	var set models.SuggestionSet
	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, profile_id, version, provider, model, created_at
		 FROM suggestion_sets WHERE id = $1`, id,
	).Scan(&set.ID, &set.JobID, &set.ProfileID, &set.Version, &set.Provider, &set.Model, &set.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get suggestion set: %w", err)
	}

	if err := s.loadSuggestions(ctx, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (s *PostgresStore) LatestSuggestionSetByCompany(ctx context.Context, company string) (*models.SuggestionSet, error) {
	var set models.SuggestionSet
	err := s.pool.QueryRow(ctx,
		`SELECT ss.id, ss.job_id, ss.profile_id, ss.version, ss.provider, ss.model, ss.created_at
		 FROM suggestion_sets ss
		 JOIN jobs j ON j.suggestion_set_id = ss.id
		 WHERE j.company = $1 AND j.status = $2
		 ORDER BY ss.created_at DESC LIMIT 1`,
		company, models.JobStatusCompleted,
	).Scan(&set.ID, &set.JobID, &set.ProfileID, &set.Version, &set.Provider, &set.Model, &set.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest suggestion set: %w", err)
	}

	if err := s.loadSuggestions(ctx, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (s *PostgresStore) loadSuggestions(ctx context.Context, set *models.SuggestionSet) error {
	rows, err := s.pool.Query(ctx,
		`SELECT position, title, rationale, channel
		 FROM suggestions WHERE set_id = $1 ORDER BY position`, set.ID)
	if err != nil {
		return fmt.Errorf("load suggestions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sg models.Suggestion
		if err := rows.Scan(&sg.Position, &sg.Title, &sg.Rationale, &sg.Channel); err != nil {
			return fmt.Errorf("scan suggestion: %w", err)
		}
		set.Suggestions = append(set.Suggestions, sg)
	}
	return rows.Err()
}

// --- Company directory ---

func (s *PostgresStore) LookupDirectory(ctx context.Context, companyName string) (*models.DirectoryEntry, error) {
	var e models.DirectoryEntry
	err := s.pool.QueryRow(ctx,
		`SELECT company_name, brand_voice, target_audience, product_category, style_guide
		 FROM company_directory WHERE company_name = $1`, companyName,
	).Scan(&e.CompanyName, &e.BrandVoice, &e.TargetAudience, &e.ProductCategory, &e.StyleGuide)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup directory: %w", err)
	}
	return &e, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
