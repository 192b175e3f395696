// Package server exposes the session controller to the browser dashboard
// over HTTP and a websocket event stream.
package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/intel"
	"github.com/sells-group/market-intel/internal/metrics"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/session"
)

// Controller is the session surface the server drives. *session.Controller
// satisfies it.
type Controller interface {
	RequestAnalysis(ctx context.Context, symbol, query string) (*model.AnalysisRecord, error)
	State(ctx context.Context) session.State
	CheckConnectivity(ctx context.Context) intel.ConnectivityStatus
	Subscribe() (<-chan session.Event, func())
}

// HistoryReader reads stored history. store.Store satisfies it.
type HistoryReader interface {
	GetRecentHistory(ctx context.Context, symbol string, limit int) ([]model.SnapshotEntry, error)
	GetNarrativeHistory(ctx context.Context, symbol string, limit int) ([]model.NarrativeEntry, error)
}

// Config configures the server.
type Config struct {
	AllowedOrigins []string
	// PingInterval is the websocket keepalive period.
	PingInterval time.Duration
}

// Server routes dashboard requests to the controller and history store.
type Server struct {
	ctrl     Controller
	history  HistoryReader
	cfg      Config
	metrics  *metrics.Recorder
	gatherer prometheus.Gatherer
	log      *zap.Logger

	streams   atomic.Int64
	shutdown  chan struct{}
	closeOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records stream metrics on rec and serves g on /metrics.
func WithMetrics(rec *metrics.Recorder, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = rec
		s.gatherer = g
	}
}

// New creates a server. history may be nil when storage is disabled.
func New(ctrl Controller, history HistoryReader, cfg Config, opts ...Option) *Server {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	s := &Server{
		ctrl:     ctrl,
		history:  history,
		cfg:      cfg,
		log:      zap.L().With(zap.String("component", "server")),
		shutdown: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleStream)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/connectivity", s.handleConnectivity)
		r.Get("/analysis", s.handleState)
		r.Post("/analysis", s.handleAnalyze)
		r.Get("/history/{symbol}", s.handleHistory)
		r.Get("/narratives/{symbol}", s.handleNarratives)
		r.Get("/tickers", s.handleTickers)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
