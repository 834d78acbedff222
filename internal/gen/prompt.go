// Package gen wraps the external suggestion-generation backend behind
// models.SuggestionProvider.
package gen

import (
	"fmt"
	"strings"

	"github.com/forgeworks/campaignforge/pkg/models"
)

const systemPrompt = "You are an expert consultant that helps companies achieve " +
	"their campaign goals by generating marketing campaign ideas from company " +
	"profiles. Respond with a JSON object: " +
	`{"company_name": string, "suggestions": [{"title": string, "rationale": string, "channel": string}]}.`

// requestSeed pins sampling so identical requests are reproducible across
// retries.
const requestSeed = 42

// BuildRequest produces the generation payload for a profile and goal. It is
// a pure function of its inputs: the same profile and goal always yield a
// field-for-field identical request, which keeps retries idempotent.
func BuildRequest(model string, p models.CompanyProfile, goal string) models.GenerationRequest {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate campaign ideas for the following campaign goal: %s\n", goal)
	b.WriteString("Based on the following company profile:\n")
	fmt.Fprintf(&b, "Company Name: %s\n", p.Name)
	fmt.Fprintf(&b, "Domain: %s\n", p.Domain)
	fmt.Fprintf(&b, "Industry: %s\n", p.Industry)
	fmt.Fprintf(&b, "Description: %s\n", p.Description)

	return models.GenerationRequest{
		Model:       model,
		System:      systemPrompt,
		Prompt:      b.String(),
		Temperature: 1,
		TopP:        1,
		Seed:        requestSeed,
	}
}
