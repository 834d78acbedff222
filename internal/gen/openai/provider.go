// Package openai implements models.SuggestionProvider against the OpenAI
// chat-completions HTTP API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/forgeworks/campaignforge/internal/config"
	"github.com/forgeworks/campaignforge/internal/gen"
	"github.com/forgeworks/campaignforge/pkg/models"
	"github.com/google/uuid"
)

// Provider implements models.SuggestionProvider using OpenAI.
type Provider struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewProvider(cfg config.OpenAIConfig, timeout time.Duration) *Provider {
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Generate(ctx context.Context, req models.GenerationRequest) (models.SuggestionSet, error) {
	body := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature:    req.Temperature,
		TopP:           req.TopP,
		Seed:           req.Seed,
		ResponseFormat: responseFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return models.SuggestionSet{}, fmt.Errorf("encoding request: %w", err)
	}

	u := strings.TrimSuffix(p.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return models.SuggestionSet{}, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		// Transport failures and timeouts are retriable.
		return models.SuggestionSet{}, fmt.Errorf("%w: %v", gen.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.SuggestionSet{}, fmt.Errorf("%w: status %d", gen.ErrProviderUnavailable, resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return models.SuggestionSet{}, fmt.Errorf("%w: decoding response: %v", gen.ErrMalformedResponse, err)
	}
	if len(chatResp.Choices) == 0 {
		return models.SuggestionSet{}, fmt.Errorf("%w: no choices", gen.ErrMalformedResponse)
	}

	return parseSuggestions(chatResp.Choices[0].Message.Content, p.Name(), req.Model)
}

// parseSuggestions validates the model output strictly: the structure must
// decode, the list must be non-empty, and every suggestion needs a title.
func parseSuggestions(content, provider, model string) (models.SuggestionSet, error) {
	var out struct {
		CompanyName string `json:"company_name"`
		Suggestions []struct {
			Title     string `json:"title"`
			Rationale string `json:"rationale"`
			Channel   string `json:"channel"`
		} `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return models.SuggestionSet{}, fmt.Errorf("%w: decoding content: %v", gen.ErrMalformedResponse, err)
	}
	if len(out.Suggestions) == 0 {
		return models.SuggestionSet{}, fmt.Errorf("%w: empty suggestion list", gen.ErrMalformedResponse)
	}

	set := models.SuggestionSet{
		ID:        uuid.New(),
		Provider:  provider,
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}
	for i, s := range out.Suggestions {
		if s.Title == "" {
			return models.SuggestionSet{}, fmt.Errorf("%w: suggestion %d has no title", gen.ErrMalformedResponse, i)
		}
		set.Suggestions = append(set.Suggestions, models.Suggestion{
			Position:  i,
			Title:     s.Title,
			Rationale: s.Rationale,
			Channel:   s.Channel,
		})
	}
	return set, nil
}

// --- OpenAI wire types ---

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	TopP           float64        `json:"top_p"`
	Seed           int            `json:"seed"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

var _ models.SuggestionProvider = (*Provider)(nil)
