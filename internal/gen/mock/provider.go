package mock

import (
	"context"
	"time"

	"github.com/forgeworks/campaignforge/pkg/models"
	"github.com/google/uuid"
)

// MockProvider satisfies models.SuggestionProvider for testing and local
// development without a generation backend.
type MockProvider struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.GenerationRequest) (models.SuggestionSet, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Generate(ctx context.Context, req models.GenerationRequest) (models.SuggestionSet, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return models.SuggestionSet{}, nil
}

// NewProvider returns a MockProvider with a canned three-suggestion response.
func NewProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		GenerateFunc: func(_ context.Context, req models.GenerationRequest) (models.SuggestionSet, error) {
			return models.SuggestionSet{
				ID:        uuid.New(),
				Provider:  "mock",
				Model:     "mock-v1",
				CreatedAt: time.Now().UTC(),
				Suggestions: []models.Suggestion{
					{Position: 0, Title: "Launch a referral program", Rationale: "Low-cost acquisition through existing customers", Channel: "email"},
					{Position: 1, Title: "Short-form product demos", Rationale: "Reach younger buyers where they browse", Channel: "social"},
					{Position: 2, Title: "Founder story series", Rationale: "Build brand trust with authentic content", Channel: "blog"},
				},
			}, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		GenerateFunc: func(_ context.Context, _ models.GenerationRequest) (models.SuggestionSet, error) {
			return models.SuggestionSet{}, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		GenerateFunc: func(ctx context.Context, _ models.GenerationRequest) (models.SuggestionSet, error) {
			<-ctx.Done()
			return models.SuggestionSet{}, ctx.Err()
		},
	}
}

// Compile-time check that MockProvider implements SuggestionProvider.
var _ models.SuggestionProvider = (*MockProvider)(nil)
