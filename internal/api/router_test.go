package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/forgeworks/campaignforge/internal/api"
	mw "github.com/forgeworks/campaignforge/internal/api/middleware"
	"github.com/forgeworks/campaignforge/internal/store"
	"github.com/forgeworks/campaignforge/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- stub store: key lookups come from the keys field, everything else is empty ---

type stubStore struct {
	keys []*models.APIKey
}

func (s *stubStore) Ping(_ context.Context) error { return nil }
func (s *stubStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return s.keys, nil
}
func (s *stubStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *stubStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error    { return nil }
func (s *stubStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error)   { return nil, nil }
func (s *stubStore) RevokeAPIKey(_ context.Context, _ uuid.UUID) error         { return nil }
func (s *stubStore) CreateJob(_ context.Context, _ *models.Job) error          { return nil }
func (s *stubStore) GetJob(_ context.Context, _ uuid.UUID) (*models.Job, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) UpdateJobStatus(_ context.Context, _ uuid.UUID, _ string, _ ...store.JobUpdateOption) error {
	return nil
}
func (s *stubStore) RequestCancel(_ context.Context, _ uuid.UUID) error { return nil }
func (s *stubStore) SaveProfile(_ context.Context, _ uuid.UUID, _ *models.CompanyProfile) (uuid.UUID, error) {
	return uuid.Nil, nil
}
func (s *stubStore) GetProfile(_ context.Context, _ uuid.UUID) (*models.CompanyProfile, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) SaveSuggestionSet(_ context.Context, _ uuid.UUID, _ *models.SuggestionSet) (uuid.UUID, error) {
	return uuid.Nil, nil
}
func (s *stubStore) GetSuggestionSet(_ context.Context, _ uuid.UUID) (*models.SuggestionSet, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) LatestSuggestionSetByCompany(_ context.Context, _ string) (*models.SuggestionSet, error) {
	return nil, store.ErrNotFound
}
func (s *stubStore) LookupDirectory(_ context.Context, _ string) (*models.DirectoryEntry, error) {
	return nil, store.ErrNotFound
}

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *stubCache) Ping(_ context.Context) error                                     { return nil }
func (c *stubCache) SetJobStatus(_ context.Context, _ uuid.UUID, _ string, _ time.Duration) error {
	return nil
}
func (c *stubCache) GetJobStatus(_ context.Context, _ uuid.UUID) (string, bool, error) {
	return "", false, nil
}
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

const rawKey = "cfk_0123456789abcdef0123456789abcdef"

func newTestRouter(t *testing.T, scopes ...string) http.Handler {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	require.NoError(t, err)

	st := &stubStore{keys: []*models.APIKey{{
		ID:        uuid.New(),
		Name:      "test",
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:8],
		Scopes:    scopes,
	}}}

	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})
}

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthIsPublic(t *testing.T) {
	r := newTestRouter(t)

	w := get(r, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedRoutesRequireAuth(t *testing.T) {
	r := newTestRouter(t, "campaigns")

	for _, path := range []string{
		"/api/v1/campaigns/jobs/" + uuid.NewString(),
		"/api/v1/campaigns/suggestions",
		"/api/v1/admin/keys",
	} {
		w := get(r, path, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, "path %s", path)
	}
}

func TestRouter_UnwiredHandlerIs501(t *testing.T) {
	r := newTestRouter(t, "campaigns")

	w := get(r, "/api/v1/campaigns/suggestions", rawKey)
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_IMPLEMENTED", body["error"].(map[string]any)["code"])
}

func TestRouter_AdminRoutesRequireScope(t *testing.T) {
	r := newTestRouter(t, "campaigns") // no admin scope

	w := get(r, "/api/v1/admin/keys", rawKey)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_AdminScopeAllowed(t *testing.T) {
	r := newTestRouter(t, "campaigns", "admin")

	w := get(r, "/api/v1/admin/keys", rawKey)
	assert.Equal(t, http.StatusNotImplemented, w.Code, "reaches the unwired handler")
}

func TestRouter_UnknownRouteIs404(t *testing.T) {
	r := newTestRouter(t)

	w := get(r, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
