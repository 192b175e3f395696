package intel

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/metrics"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/normalize"
	"github.com/sells-group/market-intel/internal/prompt"
	"github.com/sells-group/market-intel/internal/resilience"
)

// Call phases.
const (
	PhaseAnalysis = "analysis"
	PhasePing     = "ping"
)

// DefaultTemperature is the decoding temperature for analysis calls.
const DefaultTemperature = 0.1

// Client is the sole egress point to the intelligence provider.
type Client struct {
	provider    Provider
	prompt      *prompt.Template
	retry       resilience.RetryConfig
	temperature float64
	metrics     *metrics.Recorder
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithPrompt overrides the embedded prompt template.
func WithPrompt(t *prompt.Template) Option {
	return func(c *Client) { c.prompt = t }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithTemperature overrides the analysis decoding temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock overrides the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates an intelligence client over provider.
func NewClient(provider Provider, opts ...Option) (*Client, error) {
	c := &Client{
		provider:    provider,
		retry:       resilience.DefaultRetryConfig(),
		temperature: DefaultTemperature,
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.prompt == nil {
		t, err := prompt.Default()
		if err != nil {
			return nil, eris.Wrap(err, "intel: load default prompt")
		}
		c.prompt = t
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger(provider.Name(), PhaseAnalysis)
	}
	return c, nil
}

// Provider returns the name of the backing provider.
func (c *Client) Provider() string { return c.provider.Name() }

// FetchAnalysis requests a search-grounded analysis for symbol and returns
// the normalized record. Failures are returned as *resilience.UpstreamError
// and match the class sentinels with errors.Is.
func (c *Client) FetchAnalysis(ctx context.Context, symbol, query string) (*model.AnalysisRecord, error) {
	userPrompt, err := c.prompt.Render(symbol, query)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("component", "intel"),
		zap.String("provider", c.provider.Name()),
		zap.String("symbol", symbol),
	)

	temp := c.temperature
	req := GenerateRequest{
		Phase:       PhaseAnalysis,
		System:      c.prompt.System,
		Prompt:      userPrompt,
		Search:      true,
		Temperature: &temp,
	}

	type result struct {
		doc       any
		citations []Citation
	}

	start := time.Now()
	res, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (result, error) {
		callStart := time.Now()
		resp, err := c.provider.Generate(ctx, req)
		c.metrics.RecordIntelLatency(c.provider.Name(), PhaseAnalysis, time.Since(callStart).Seconds())
		if err != nil {
			return result{}, err
		}
		doc, err := ExtractJSON(resp.Text)
		if err != nil {
			return result{}, err
		}
		return result{doc: doc, citations: resp.Citations}, nil
	})
	if err != nil {
		ue := resilience.NewUpstreamError(err)
		c.metrics.RecordIntelRequest(c.provider.Name(), string(ue.Class))
		log.Error("intel: fetch analysis failed",
			zap.String("class", string(ue.Class)),
			zap.String("upstream_message", ue.Message),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, ue
	}

	record := normalize.Normalize(res.doc, symbol, c.now())
	record.GroundingSources = GroundingSources(res.citations)

	c.metrics.RecordIntelRequest(c.provider.Name(), "success")
	log.Info("intel: analysis complete",
		zap.String("regime", string(record.MarketRegime)),
		zap.String("confidence", string(record.ConfidenceScore)),
		zap.Int("sources", len(record.GroundingSources)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &record, nil
}
