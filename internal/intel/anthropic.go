package intel

import (
	"context"
	"errors"
	"net/http"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/market-intel/internal/resilience"
	"github.com/sells-group/market-intel/pkg/anthropic"
)

// AnthropicConfig tunes the Anthropic provider.
type AnthropicConfig struct {
	Model            string
	PingModel        string
	MaxTokens        int64
	WebSearchMaxUses int64
}

// AnthropicProvider adapts the Anthropic Messages API with the web search
// server tool.
type AnthropicProvider struct {
	client anthropic.Client
	cfg    AnthropicConfig
}

// NewAnthropicProvider creates a provider with defaults filled in.
func NewAnthropicProvider(client anthropic.Client, cfg AnthropicConfig) *AnthropicProvider {
	if cfg.Model == "" {
		cfg.Model = anthropic.DefaultModel
	}
	if cfg.PingModel == "" {
		cfg.PingModel = cfg.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.WebSearchMaxUses <= 0 {
		cfg.WebSearchMaxUses = 5
	}
	return &AnthropicProvider{client: client, cfg: cfg}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Generate implements Provider.
func (p *AnthropicProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	msg := anthropic.MessageRequest{
		Model:       p.cfg.Model,
		MaxTokens:   p.cfg.MaxTokens,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	if req.Phase == PhasePing {
		msg.Model = p.cfg.PingModel
	}
	if req.MaxOutputTokens > 0 {
		msg.MaxTokens = int64(req.MaxOutputTokens)
	}
	if req.System != "" {
		msg.System = anthropic.BuildCachedSystemBlocks(req.System, "5m")
	}
	if req.Search {
		msg.WebSearchMaxUses = p.cfg.WebSearchMaxUses
	}

	resp, err := p.client.CreateMessage(ctx, msg)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}
	resp.Usage.LogCost(msg.Model, req.Phase)

	out := &GenerateResponse{
		Text: resp.Text(),
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}
	for _, c := range resp.Citations() {
		out.Citations = append(out.Citations, Citation{Title: c.Title, URI: c.URL})
	}
	return out, nil
}

// classifyAnthropicError maps authentication and rate-limit statuses onto
// the shared error classes. Anthropic signals both by status code.
func classifyAnthropicError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &resilience.UpstreamError{
				Class:   resilience.ClassCredential,
				Message: resilience.ErrorMessage(err),
				Err:     err,
			}
		case http.StatusTooManyRequests:
			return &resilience.UpstreamError{
				Class:   resilience.ClassQuota,
				Message: resilience.ErrorMessage(err),
				Err:     err,
			}
		}
	}
	return eris.Wrap(err, "intel: anthropic generate")
}
