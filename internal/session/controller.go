// Package session orchestrates analysis requests and the simulated live feed
// for a single dashboard session.
package session

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/intel"
	"github.com/sells-group/market-intel/internal/livefeed"
	"github.com/sells-group/market-intel/internal/metrics"
	"github.com/sells-group/market-intel/internal/model"
)

var (
	// ErrThrottled is returned when a request follows the previous one too
	// closely. Nothing is changed.
	ErrThrottled = eris.New("session: request throttled")
	// ErrBusy is returned while another request is in flight.
	ErrBusy = eris.New("session: request in flight")
	// ErrEmptySymbol is returned for a blank symbol.
	ErrEmptySymbol = eris.New("session: symbol is required")
)

// Analyzer fetches analyses and probes the provider. *intel.Client
// satisfies it.
type Analyzer interface {
	FetchAnalysis(ctx context.Context, symbol, query string) (*model.AnalysisRecord, error)
	CheckConnectivity(ctx context.Context) intel.ConnectivityStatus
}

// SnapshotSink accepts history writes without blocking. *store.AsyncWriter
// satisfies it.
type SnapshotSink interface {
	EnqueueSnapshot(symbol string, m model.Microstructure) bool
	EnqueueNarrative(symbol string, n model.NarrativeIntelligence) bool
}

// CredentialHook lets the host swap the provider credential.
type CredentialHook interface {
	HasCredential(ctx context.Context) bool
	Select(ctx context.Context) error
}

// Config tunes the controller.
type Config struct {
	// Throttle is the minimum gap between a completed request and the next.
	Throttle time.Duration
	// FeedInterval is the live feed tick period.
	FeedInterval time.Duration
	// Feed bounds the simulated jitter.
	Feed livefeed.Params
	// SubscriberBuffer is the per-subscriber event buffer.
	SubscriberBuffer int
}

// DefaultConfig returns the standard controller settings.
func DefaultConfig() Config {
	return Config{
		Throttle:         2 * time.Second,
		FeedInterval:     livefeed.DefaultInterval,
		Feed:             livefeed.DefaultParams(),
		SubscriberBuffer: 32,
	}
}

// State is a point-in-time copy of the session.
type State struct {
	Record        *model.AnalysisRecord    `json:"record"`
	Failure       *Failure                 `json:"failure"`
	Busy          bool                     `json:"busy"`
	LiveSymbol    string                   `json:"liveSymbol,omitempty"`
	Health        intel.ConnectivityStatus `json:"health"`
	HasCredential bool                     `json:"hasCredential"`
}

// Controller owns the current analysis record. RequestAnalysis replaces it
// wholesale; the Run loop is the only writer of its live microstructure.
type Controller struct {
	analyzer Analyzer
	sink     SnapshotSink
	hook     CredentialHook
	metrics  *metrics.Recorder
	cfg      Config
	log      *zap.Logger

	now   func() time.Time
	rnd   livefeed.Rand
	newID func() string

	base   context.Context
	cancel context.CancelFunc
	ticks  chan livefeed.Tick

	// feedMu serializes feed replacement.
	feedMu sync.Mutex

	mu       sync.Mutex
	record   *model.AnalysisRecord
	failure  *Failure
	busy     bool
	lastDone time.Time
	health   intel.ConnectivityStatus
	feed     *livefeed.Feed

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// Option configures a Controller.
type Option func(*Controller)

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// WithCredentialHook installs the credential reselection hook.
func WithCredentialHook(h CredentialHook) Option {
	return func(c *Controller) { c.hook = h }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithRand overrides the random source for the live feed.
func WithRand(r livefeed.Rand) Option {
	return func(c *Controller) { c.rnd = r }
}

// New creates a controller. sink may be nil when history is disabled.
func New(analyzer Analyzer, sink SnapshotSink, opts ...Option) *Controller {
	base, cancel := context.WithCancel(context.Background())
	c := &Controller{
		analyzer: analyzer,
		sink:     sink,
		cfg:      DefaultConfig(),
		log:      zap.L().With(zap.String("component", "session")),
		now:      time.Now,
		rnd:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		newID:    uuid.NewString,
		base:     base,
		cancel:   cancel,
		ticks:    make(chan livefeed.Tick, 1),
		health:   intel.ConnectivityStatus{Status: intel.StateOffline, Message: "Checking..."},
		subs:     make(map[int]chan Event),
	}
	for _, o := range opts {
		o(c)
	}
	if c.cfg.Throttle < 0 {
		c.cfg.Throttle = 0
	}
	if c.cfg.SubscriberBuffer <= 0 {
		c.cfg.SubscriberBuffer = 32
	}
	return c
}

// RequestAnalysis fetches a fresh analysis for symbol. It returns
// ErrThrottled when the previous request completed within the throttle
// window and ErrBusy while one is in flight; neither changes any state. On
// failure the previous record is kept and the classified failure is exposed
// through State.
func (c *Controller) RequestAnalysis(ctx context.Context, symbol, query string) (*model.AnalysisRecord, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, ErrEmptySymbol
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if !c.lastDone.IsZero() && c.now().Sub(c.lastDone) < c.cfg.Throttle {
		c.mu.Unlock()
		return nil, ErrThrottled
	}
	c.busy = true
	c.failure = nil
	c.mu.Unlock()

	id := c.newID()
	log := c.log.With(zap.String("request_id", id), zap.String("symbol", symbol))
	log.Info("requesting market intelligence")

	rec, err := c.analyzer.FetchAnalysis(ctx, symbol, query)
	if err != nil {
		return nil, c.fail(ctx, log, id, symbol, err)
	}

	current := *rec
	c.mu.Lock()
	c.busy = false
	c.lastDone = c.now()
	c.record = &current
	c.health = intel.ConnectivityStatus{Status: intel.StateOnline, Message: "Intelligence synthesis successful."}
	c.mu.Unlock()

	log.Info("synthesis complete", zap.String("market_regime", string(current.MarketRegime)))

	if c.sink != nil {
		c.sink.EnqueueNarrative(current.Symbol, current.NarrativeIntelligence)
	}
	out := current
	c.publish(Event{Type: EventAnalysis, Symbol: current.Symbol, RequestID: id, Record: &out})
	c.StartLiveFeed(current.Symbol)

	result := current
	return &result, nil
}

func (c *Controller) fail(ctx context.Context, log *zap.Logger, id, symbol string, err error) error {
	f := NewFailure(err)
	f.Symbol = symbol
	f.RequestID = id

	c.mu.Lock()
	c.busy = false
	c.lastDone = c.now()
	c.failure = &f
	c.health = intel.ConnectivityStatus{Status: intel.StateOffline, Message: "Last request returned a non-200 response."}
	c.mu.Unlock()

	log.Error("intelligence request failed",
		zap.String("class", string(f.Class)),
		zap.String("upstream_message", f.Detail),
		zap.Error(err),
	)
	out := f
	c.publish(Event{Type: EventFailure, Symbol: symbol, RequestID: id, Failure: &out})

	if f.Class == FailureCredential && c.hook != nil {
		if hookErr := c.hook.Select(ctx); hookErr != nil {
			log.Warn("credential reselection failed", zap.Error(hookErr))
		}
	}
	return err
}

// StartLiveFeed subscribes the live feed to symbol, stopping any previous
// feed first.
func (c *Controller) StartLiveFeed(symbol string) {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()

	c.mu.Lock()
	prev := c.feed
	c.feed = nil
	c.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	f := livefeed.Start(c.base, symbol, c.cfg.FeedInterval, c.ticks)

	c.mu.Lock()
	c.feed = f
	c.mu.Unlock()

	c.log.Info("live feed subscribed", zap.String("symbol", symbol))
}

// StopLiveFeed stops the running feed, if any.
func (c *Controller) StopLiveFeed() {
	c.feedMu.Lock()
	defer c.feedMu.Unlock()

	c.mu.Lock()
	f := c.feed
	c.feed = nil
	c.mu.Unlock()
	if f != nil {
		f.Stop()
	}
}

// Run applies live feed ticks until ctx is cancelled or Stop is called.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.base.Done():
			return
		case tick := <-c.ticks:
			c.applyTick(tick)
		}
	}
}

// applyTick perturbs the current record's microstructure when the tick is
// for the record's symbol. Ticks for any other symbol are ignored.
func (c *Controller) applyTick(tick livefeed.Tick) {
	c.mu.Lock()
	if c.record == nil || c.record.Symbol != tick.Symbol {
		c.mu.Unlock()
		return
	}
	micro := livefeed.Perturb(c.record.Microstructure, c.rnd, c.cfg.Feed)
	next := c.record.WithMicrostructure(micro)
	c.record = &next
	c.mu.Unlock()

	c.metrics.RecordTick(tick.Symbol, micro.Bid, micro.Ask)
	if c.sink != nil {
		c.sink.EnqueueSnapshot(tick.Symbol, micro)
	}
	out := micro
	c.publish(Event{Type: EventMicrostructure, Symbol: tick.Symbol, Microstructure: &out, At: tick.At})
}

// CheckConnectivity probes the provider and records the result as the
// session health.
func (c *Controller) CheckConnectivity(ctx context.Context) intel.ConnectivityStatus {
	c.log.Info("running connectivity diagnostic")
	status := c.analyzer.CheckConnectivity(ctx)

	c.mu.Lock()
	c.health = status
	c.mu.Unlock()

	c.log.Info("connectivity diagnostic complete",
		zap.String("status", string(status.Status)),
		zap.String("message", status.Message),
	)
	out := status
	c.publish(Event{Type: EventHealth, Health: &out})
	return status
}

// State returns a copy of the current session state.
func (c *Controller) State(ctx context.Context) State {
	c.mu.Lock()
	s := State{
		Busy:   c.busy,
		Health: c.health,
	}
	if c.record != nil {
		r := *c.record
		s.Record = &r
	}
	if c.failure != nil {
		f := *c.failure
		s.Failure = &f
	}
	if c.feed != nil {
		s.LiveSymbol = c.feed.Symbol()
	}
	c.mu.Unlock()

	if c.hook != nil {
		s.HasCredential = c.hook.HasCredential(ctx)
	}
	return s
}

// Stop cancels the live feed and ends Run.
func (c *Controller) Stop() {
	c.StopLiveFeed()
	c.cancel()
}
