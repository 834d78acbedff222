package models

import "context"

// SuggestionProvider is the capability interface for the generation backend.
// Callers inject this interface rather than a concrete backend.
type SuggestionProvider interface {
	// Generate produces a suggestion set for the given request. The request
	// is deterministic per profile+goal so retries replay the same payload.
	Generate(ctx context.Context, req GenerationRequest) (SuggestionSet, error)
	// Name returns the provider identifier (e.g., "openai", "mock").
	Name() string
}

// GenerationRequest is the backend-independent request payload. Field order
// and contents are fixed functions of the profile and goal; building the
// request twice from the same inputs yields identical values.
type GenerationRequest struct {
	Model       string  `json:"model"`
	System      string  `json:"system"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Seed        int     `json:"seed"`
}
