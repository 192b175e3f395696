package intel

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/pkg/gemini"
)

// GeminiProvider adapts the Gemini SDK client.
type GeminiProvider struct {
	client    gemini.Client
	model     string
	pingModel string
}

// NewGeminiProvider creates a provider. Empty model names use
// gemini.DefaultModel.
func NewGeminiProvider(client gemini.Client, model, pingModel string) *GeminiProvider {
	if model == "" {
		model = gemini.DefaultModel
	}
	if pingModel == "" {
		pingModel = model
	}
	return &GeminiProvider{client: client, model: model, pingModel: pingModel}
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// Generate implements Provider.
func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	body := gemini.TextRequest(req.System, req.Prompt)
	if req.Search {
		body.Tools = []gemini.Tool{{GoogleSearch: &gemini.GoogleSearch{}}}
	}
	if req.Temperature != nil || req.MaxOutputTokens > 0 {
		body.GenerationConfig = &gemini.GenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxOutputTokens,
		}
	}

	model := p.model
	if req.Phase == PhasePing {
		model = p.pingModel
	}

	resp, err := p.client.GenerateContent(ctx, model, body)
	if err != nil {
		return nil, eris.Wrap(err, "intel: gemini generate")
	}

	out := &GenerateResponse{
		Text: resp.Text(),
		Usage: Usage{
			InputTokens:  int64(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		},
	}
	for _, chunk := range resp.GroundingChunks() {
		if chunk.Web == nil {
			out.Citations = append(out.Citations, Citation{})
			continue
		}
		out.Citations = append(out.Citations, Citation{Title: chunk.Web.Title, URI: chunk.Web.URI})
	}

	zap.L().Debug("token usage",
		zap.String("provider", p.Name()),
		zap.String("model", model),
		zap.String("phase", req.Phase),
		zap.Int64("input_tokens", out.Usage.InputTokens),
		zap.Int64("output_tokens", out.Usage.OutputTokens),
		zap.Int("grounding_chunks", len(out.Citations)),
	)
	return out, nil
}
