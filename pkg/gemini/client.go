// Package gemini wraps the Google Gen AI SDK for Gemini generateContent calls.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	apiVersion = "v1beta"

	// DefaultModel is the model used when none is configured.
	DefaultModel = "gemini-flash-lite-latest"
)

// ErrMissingAPIKey is returned when no API key is available at call time.
var ErrMissingAPIKey = eris.New("gemini: API_KEY_INVALID: no API key configured")

// Client performs Gemini generateContent calls.
type Client interface {
	GenerateContent(ctx context.Context, model string, req *GenerateContentRequest) (*GenerateContentResponse, error)
}

// GenerateContentRequest is the request body for models/{model}:generateContent.
type GenerateContentRequest struct {
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	Contents          []Content         `json:"contents"`
	Tools             []Tool            `json:"tools,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is a single turn of conversation.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is a content fragment. Only text parts are used.
type Part struct {
	Text string `json:"text,omitempty"`
}

// Tool enables a server-side tool for the request.
type Tool struct {
	GoogleSearch *GoogleSearch `json:"googleSearch,omitempty"`
}

// GoogleSearch enables search grounding. It has no options.
type GoogleSearch struct{}

// GenerationConfig controls sampling.
type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

// GenerateContentResponse is the generateContent response body.
type GenerateContentResponse struct {
	Candidates    []Candidate   `json:"candidates"`
	UsageMetadata UsageMetadata `json:"usageMetadata"`
	ModelVersion  string        `json:"modelVersion,omitempty"`
}

// Candidate is one generated completion.
type Candidate struct {
	Content           Content            `json:"content"`
	FinishReason      string             `json:"finishReason,omitempty"`
	GroundingMetadata *GroundingMetadata `json:"groundingMetadata,omitempty"`
}

// GroundingMetadata lists the web sources used by search grounding.
type GroundingMetadata struct {
	GroundingChunks  []GroundingChunk `json:"groundingChunks,omitempty"`
	WebSearchQueries []string         `json:"webSearchQueries,omitempty"`
}

// GroundingChunk is a single grounding source.
type GroundingChunk struct {
	Web *WebChunk `json:"web,omitempty"`
}

// WebChunk is a web page used for grounding.
type WebChunk struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// UsageMetadata reports token counts.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// Text concatenates the text parts of the first candidate.
func (r *GenerateContentResponse) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// GroundingChunks returns the grounding chunks of the first candidate.
func (r *GenerateContentResponse) GroundingChunks() []GroundingChunk {
	if r == nil || len(r.Candidates) == 0 || r.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	return r.Candidates[0].GroundingMetadata.GroundingChunks
}

// APIError is returned for non-2xx responses. Body holds the upstream error
// envelope.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini: unexpected status %d: %s", e.StatusCode, e.Body)
}

// UpstreamMessage returns the upstream error envelope.
func (e *APIError) UpstreamMessage() string { return e.Body }

// fromSDKError converts a genai.APIError into an *APIError carrying the
// standard {"error":{...}} envelope. Other errors pass through.
func fromSDKError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return err
		}
		apiErr = *ptr
	}

	envelope := map[string]any{"error": map[string]any{
		"code":    apiErr.Code,
		"message": apiErr.Message,
		"status":  apiErr.Status,
	}}
	body, mErr := json.Marshal(envelope)
	if mErr != nil {
		body = []byte(apiErr.Message)
	}
	return &APIError{StatusCode: apiErr.Code, Status: apiErr.Status, Body: string(body)}
}

// Option configures the client.
type Option func(*sdkClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *sdkClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *sdkClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(rps float64) Option {
	return func(c *sdkClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithKeySource makes the client read its API key from fn on every call,
// so a rotated key takes effect without rebuilding the client.
func WithKeySource(fn func() string) Option {
	return func(c *sdkClient) {
		c.keyFn = fn
	}
}

type sdkClient struct {
	keyFn   func() string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter

	mu     sync.Mutex
	key    string
	client *genai.Client
}

// NewClient creates a Gemini API client. The underlying SDK client is built
// on first use and rebuilt whenever the API key changes.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{
		keyFn: func() string { return apiKey },
		http: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *sdkClient) sdk(ctx context.Context) (*genai.Client, error) {
	key := c.keyFn()
	if key == "" {
		return nil, ErrMissingAPIKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && c.key == key {
		return c.client, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  c.http,
		HTTPOptions: genai.HTTPOptions{APIVersion: apiVersion},
	}
	if c.baseURL != "" {
		cfg.HTTPOptions.BaseURL = c.baseURL + "/"
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	c.key, c.client = key, client
	return client, nil
}

func (c *sdkClient) GenerateContent(ctx context.Context, model string, req *GenerateContentRequest) (*GenerateContentResponse, error) {
	if model == "" {
		model = DefaultModel
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "gemini: rate limit wait")
		}
	}

	client, err := c.sdk(ctx)
	if err != nil {
		return nil, err
	}

	contents, config := toSDKRequest(req)
	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, eris.Wrap(fromSDKError(err), "gemini: generate content")
	}
	return fromSDKResponse(resp), nil
}

func toSDKContent(c *Content) *genai.Content {
	out := &genai.Content{Role: c.Role}
	for _, p := range c.Parts {
		out.Parts = append(out.Parts, &genai.Part{Text: p.Text})
	}
	return out
}

func toSDKRequest(req *GenerateContentRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	if req == nil {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(req.Contents))
	for i := range req.Contents {
		contents = append(contents, toSDKContent(&req.Contents[i]))
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemInstruction != nil {
		config.SystemInstruction = toSDKContent(req.SystemInstruction)
	}
	for _, t := range req.Tools {
		if t.GoogleSearch != nil {
			config.Tools = append(config.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		}
	}
	if gc := req.GenerationConfig; gc != nil {
		if gc.Temperature != nil {
			temp := float32(*gc.Temperature)
			config.Temperature = &temp
		}
		config.MaxOutputTokens = int32(gc.MaxOutputTokens)
	}
	return contents, config
}

func fromSDKResponse(resp *genai.GenerateContentResponse) *GenerateContentResponse {
	out := &GenerateContentResponse{}
	if resp == nil {
		return out
	}
	out.ModelVersion = resp.ModelVersion
	if u := resp.UsageMetadata; u != nil {
		out.UsageMetadata = UsageMetadata{
			PromptTokenCount:     int(u.PromptTokenCount),
			CandidatesTokenCount: int(u.CandidatesTokenCount),
			TotalTokenCount:      int(u.TotalTokenCount),
		}
	}

	for _, cand := range resp.Candidates {
		if cand == nil {
			continue
		}
		c := Candidate{FinishReason: string(cand.FinishReason)}
		if cand.Content != nil {
			c.Content.Role = cand.Content.Role
			for _, p := range cand.Content.Parts {
				// Thought summaries are not part of the answer.
				if p == nil || p.Thought {
					continue
				}
				c.Content.Parts = append(c.Content.Parts, Part{Text: p.Text})
			}
		}
		if gm := cand.GroundingMetadata; gm != nil {
			c.GroundingMetadata = &GroundingMetadata{WebSearchQueries: gm.WebSearchQueries}
			for _, chunk := range gm.GroundingChunks {
				var gc GroundingChunk
				if chunk != nil && chunk.Web != nil {
					gc.Web = &WebChunk{URI: chunk.Web.URI, Title: chunk.Web.Title}
				}
				c.GroundingMetadata.GroundingChunks = append(c.GroundingMetadata.GroundingChunks, gc)
			}
		}
		out.Candidates = append(out.Candidates, c)
	}
	return out
}

// TextRequest builds a single-turn request with an optional system
// instruction.
func TextRequest(system, prompt string) *GenerateContentRequest {
	req := &GenerateContentRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: prompt}}}},
	}
	if system != "" {
		req.SystemInstruction = &Content{Parts: []Part{{Text: system}}}
	}
	return req
}
