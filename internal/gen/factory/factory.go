package factory

import (
	"fmt"

	"github.com/forgeworks/campaignforge/internal/config"
	"github.com/forgeworks/campaignforge/internal/gen/mock"
	"github.com/forgeworks/campaignforge/internal/gen/openai"
	"github.com/forgeworks/campaignforge/pkg/models"
)

// NewProvider constructs the suggestion provider selected by config. Called
// once at server startup.
func NewProvider(cfg config.GeneratorConfig) (models.SuggestionProvider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewProvider(cfg.OpenAI, cfg.RequestTimeout), nil
	case "mock":
		return mock.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q: must be one of openai, mock", cfg.Provider)
	}
}
