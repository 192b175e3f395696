// Package intel turns a symbol and research mandate into a normalized
// AnalysisRecord by calling a search-grounded generative model.
package intel

import (
	"context"
)

// Provider is a generative model backend with optional web search grounding.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest is a single provider call.
type GenerateRequest struct {
	// Phase labels the call for cost logging ("analysis" or "ping").
	Phase           string
	System          string
	Prompt          string
	Search          bool
	Temperature     *float64
	MaxOutputTokens int
}

// GenerateResponse is the provider's text output plus any search citations.
type GenerateResponse struct {
	Text      string
	Citations []Citation
	Usage     Usage
}

// Citation is a search grounding reference as returned by the provider.
// Either field may be empty.
type Citation struct {
	Title string
	URI   string
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}
