package anthropic

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "claude-sonnet-4-5-20250929"

// Client defines the Anthropic API operations used by the intelligence client.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is our own request type for CreateMessage.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Temperature *float64

	// WebSearchMaxUses enables the server-side web search tool when > 0 and
	// caps how many searches the model may run.
	WebSearchMaxUses int64
}

// SystemBlock represents a system prompt block, optionally with cache control.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl configures caching for a content block.
type CacheControl struct {
	TTL string // "5m" or "1h"
}

// Message represents a single conversational message.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// MessageResponse is our own response type from CreateMessage.
type MessageResponse struct {
	ID           string
	Model        string
	Content      []ContentBlock
	StopReason   string
	Usage        TokenUsage
	StopSequence string
}

// Text concatenates all text blocks in order.
func (r *MessageResponse) Text() string {
	if r == nil {
		return ""
	}
	var out string
	for _, b := range r.Content {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

// Citations returns the web citations attached to text blocks, in order.
func (r *MessageResponse) Citations() []Citation {
	if r == nil {
		return nil
	}
	var out []Citation
	for _, b := range r.Content {
		out = append(out, b.Citations...)
	}
	return out
}

// ContentBlock represents a block of content in a response.
type ContentBlock struct {
	Type      string
	Text      string
	Citations []Citation
}

// Citation is a web source cited by a text block.
type Citation struct {
	URL   string
	Title string
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
	WebSearchRequests        int64
}

// modelPricing holds per-million-token pricing for known models.
var modelPricing = map[string][2]float64{
	// model → {input $/MTok, output $/MTok}
	"claude-haiku-4-5-20251001":  {0.80, 4.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
	"claude-opus-4-6":            {15.00, 75.00},
}

// webSearchCostPerRequest is the flat per-search charge in USD.
const webSearchCostPerRequest = 0.01

// EstimateCost computes an estimated cost in USD from a TokenUsage and model ID.
// Returns 0 for unknown models.
func (u TokenUsage) EstimateCost(model string) float64 {
	pricing, ok := modelPricing[model]
	if !ok {
		return 0
	}
	inCost := (float64(u.InputTokens) / 1e6) * pricing[0]
	outCost := (float64(u.OutputTokens) / 1e6) * pricing[1]
	cacheWriteCost := (float64(u.CacheCreationInputTokens) / 1e6) * pricing[0] * 1.25
	cacheReadCost := (float64(u.CacheReadInputTokens) / 1e6) * pricing[0] * 0.1
	searchCost := float64(u.WebSearchRequests) * webSearchCostPerRequest
	return inCost + outCost + cacheWriteCost + cacheReadCost + searchCost
}

// LogCost logs token usage and estimated cost with structured zap fields.
func (u TokenUsage) LogCost(model, phase string) {
	cost := u.EstimateCost(model)
	zap.L().Info("cost attribution",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Int64("web_search_requests", u.WebSearchRequests),
		zap.Float64("estimated_cost_usd", cost),
	)
}

// BuildCachedSystemBlocks wraps a static system prompt in a single block
// with a cache breakpoint.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	return []SystemBlock{
		{
			Text:         text,
			CacheControl: &CacheControl{TTL: ttl},
		},
	}
}

// Option configures the client.
type Option func(*sdkClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) Option {
	return func(c *sdkClient) {
		c.opts = append(c.opts, option.WithBaseURL(url))
	}
}

// WithMaxRetries sets the SDK's own retry count. The intelligence client
// retries on its own, so callers normally pass 0.
func WithMaxRetries(n int) Option {
	return func(c *sdkClient) {
		c.opts = append(c.opts, option.WithMaxRetries(n))
	}
}

// WithKeySource makes the client read its API key from fn on every call.
func WithKeySource(fn func() string) Option {
	return func(c *sdkClient) {
		c.keyFn = fn
	}
}

// sdkClient implements Client using the official anthropic-sdk-go.
type sdkClient struct {
	client sdk.Client
	keyFn  func() string
	opts   []option.RequestOption
}

// NewClient creates a new Anthropic client backed by the SDK.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{
		keyFn: func() string { return apiKey },
	}
	for _, o := range opts {
		o(c)
	}
	c.client = sdk.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, c.opts...)...)
	return c
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Messages),
	}

	if len(req.System) > 0 {
		params.System = toSDKSystemBlocks(req.System)
	}

	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	if req.WebSearchMaxUses > 0 {
		params.Tools = []sdk.ToolUnionParam{webSearchTool(req.WebSearchMaxUses)}
	}

	var reqOpts []option.RequestOption
	if c.keyFn != nil {
		reqOpts = append(reqOpts, option.WithAPIKey(c.keyFn()))
	}

	msg, err := c.client.Messages.New(ctx, params, reqOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}

	return fromSDKMessage(msg), nil
}

// --- SDK type conversion helpers ---

func webSearchTool(maxUses int64) sdk.ToolUnionParam {
	return sdk.ToolUnionParam{
		OfWebSearchTool20250305: &sdk.WebSearchTool20250305Param{
			MaxUses: sdk.Int(maxUses),
		},
	}
}

func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case "assistant":
			out[i] = sdk.NewAssistantMessage(block)
		default:
			out[i] = sdk.NewUserMessage(block)
		}
	}
	return out
}

func toSDKSystemBlocks(blocks []SystemBlock) []sdk.TextBlockParam {
	out := make([]sdk.TextBlockParam, len(blocks))
	for i, b := range blocks {
		out[i] = sdk.TextBlockParam{
			Text: b.Text,
		}
		if b.CacheControl != nil {
			cc := sdk.NewCacheControlEphemeralParam()
			if b.CacheControl.TTL != "" {
				cc.TTL = sdk.CacheControlEphemeralTTL(b.CacheControl.TTL)
			}
			out[i].CacheControl = cc
		}
	}
	return out
}

func fromSDKMessage(msg *sdk.Message) *MessageResponse {
	blocks := make([]ContentBlock, 0, len(msg.Content))
	for _, b := range msg.Content {
		block := ContentBlock{
			Type: b.Type,
			Text: b.Text,
		}
		for _, c := range b.Citations {
			if c.URL == "" {
				continue
			}
			block.Citations = append(block.Citations, Citation{URL: c.URL, Title: c.Title})
		}
		blocks = append(blocks, block)
	}

	return &MessageResponse{
		ID:           msg.ID,
		Model:        string(msg.Model),
		Content:      blocks,
		StopReason:   string(msg.StopReason),
		StopSequence: msg.StopSequence,
		Usage: TokenUsage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
			WebSearchRequests:        msg.Usage.ServerToolUse.WebSearchRequests,
		},
	}
}
