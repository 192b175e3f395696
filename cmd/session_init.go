package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/config"
	"github.com/sells-group/market-intel/internal/credential"
	"github.com/sells-group/market-intel/internal/intel"
	"github.com/sells-group/market-intel/internal/livefeed"
	"github.com/sells-group/market-intel/internal/metrics"
	"github.com/sells-group/market-intel/internal/prompt"
	"github.com/sells-group/market-intel/internal/resilience"
	"github.com/sells-group/market-intel/internal/session"
	"github.com/sells-group/market-intel/internal/store"
	anthropicpkg "github.com/sells-group/market-intel/pkg/anthropic"
	"github.com/sells-group/market-intel/pkg/gemini"
)

// closeTimeout bounds how long shutdown waits for queued history writes.
const closeTimeout = 5 * time.Second

// sessionEnv holds the initialized clients and the controller used by the
// serve and analyze commands.
type sessionEnv struct {
	Store      store.Store
	Writer     *store.AsyncWriter
	Intel      *intel.Client
	Credential *credential.Selector
	Controller *session.Controller
	Registry   *prometheus.Registry
	Metrics    *metrics.Recorder
}

// Close stops the controller, drains queued writes, and closes the store.
func (e *sessionEnv) Close() {
	if e.Controller != nil {
		e.Controller.Stop()
	}
	if e.Writer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := e.Writer.Close(ctx); err != nil {
			zap.L().Warn("history writer did not drain", zap.Error(err))
		}
		cancel()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initSession builds the store, intelligence client, and controller.
// Callers should defer env.Close().
func initSession(ctx context.Context) (*sessionEnv, error) {
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	st, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	// Storage failures never block the session; history stays disabled
	// until a later write initializes it.
	if err := st.Initialize(ctx); err != nil {
		zap.L().Warn("history storage unavailable", zap.Error(err))
	}

	breaker := resilience.NewCircuitBreaker(resilience.FromCircuitConfig(
		cfg.Store.FailureThreshold, cfg.Store.ResetTimeoutSecs))
	writer := store.NewAsyncWriter(st, cfg.Store.QueueSize,
		store.WithMetrics(rec), store.WithBreaker(breaker))

	selector := credential.NewSelector(cfg.ProviderKeyVar(), cfg.Credential.KeyFile, cfg.ProviderKey())

	client, err := initIntel(cfg, selector, rec)
	if err != nil {
		_ = writer.Close(ctx)
		_ = st.Close()
		return nil, err
	}

	ctl := session.New(client, writer,
		session.WithConfig(sessionConfig(cfg.Session)),
		session.WithCredentialHook(selector),
		session.WithMetrics(rec),
	)

	return &sessionEnv{
		Store:      st,
		Writer:     writer,
		Intel:      client,
		Credential: selector,
		Controller: ctl,
		Registry:   reg,
		Metrics:    rec,
	}, nil
}

// initStore returns the configured history backend. The database is opened
// lazily.
func initStore(c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		return store.NewSQLite(c.Store.DatabaseURL), nil
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return nil, eris.New("postgres store requires a database URL (MARKETINTEL_STORE_DATABASE_URL)")
		}
		return store.NewPostgres(c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		}), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// initIntel builds the provider client. Keys are read through sel on every
// call so a reselected credential applies immediately.
func initIntel(c *config.Config, sel *credential.Selector, rec *metrics.Recorder) (*intel.Client, error) {
	tmpl, err := prompt.Load(c.Intel.PromptFile)
	if err != nil {
		return nil, err
	}

	var provider intel.Provider
	switch c.Intel.Provider {
	case "gemini":
		opts := []gemini.Option{
			gemini.WithKeySource(sel.Key),
			gemini.WithRateLimit(c.Intel.RateLimitRPS),
		}
		if c.Gemini.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(c.Gemini.BaseURL))
		}
		provider = intel.NewGeminiProvider(gemini.NewClient(sel.Key(), opts...), c.Intel.Model, c.Intel.PingModel)
	case "anthropic":
		opts := []anthropicpkg.Option{
			anthropicpkg.WithKeySource(sel.Key),
			anthropicpkg.WithMaxRetries(0),
		}
		if c.Anthropic.BaseURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(c.Anthropic.BaseURL))
		}
		model := c.Anthropic.Model
		if model == "" {
			model = c.Intel.Model
		}
		provider = intel.NewAnthropicProvider(anthropicpkg.NewClient(sel.Key(), opts...), intel.AnthropicConfig{
			Model:            model,
			PingModel:        c.Anthropic.PingModel,
			MaxTokens:        c.Anthropic.MaxTokens,
			WebSearchMaxUses: c.Anthropic.WebSearchMaxUses,
		})
	default:
		return nil, eris.Errorf("unsupported intel provider: %s", c.Intel.Provider)
	}

	return intel.NewClient(provider,
		intel.WithPrompt(tmpl),
		intel.WithTemperature(c.Intel.Temperature),
		intel.WithRetry(resilience.FromRetryConfig(
			c.Intel.Retry.MaxAttempts, c.Intel.Retry.InitialBackoffMs, c.Intel.Retry.Multiplier)),
		intel.WithMetrics(rec),
	)
}

func sessionConfig(c config.SessionConfig) session.Config {
	sc := session.DefaultConfig()
	sc.Throttle = time.Duration(c.ThrottleMs) * time.Millisecond
	if c.FeedIntervalMs > 0 {
		sc.FeedInterval = time.Duration(c.FeedIntervalMs) * time.Millisecond
	}
	sc.Feed = livefeed.Params{
		Volatility:      c.Volatility,
		SpreadFloor:     c.SpreadFloor,
		LiquidityFloor:  c.LiquidityFloor,
		LiquidityJitter: sc.Feed.LiquidityJitter,
		SizeJitter:      sc.Feed.SizeJitter,
		MinDepthSize:    c.MinDepthSize,
	}
	return sc
}
