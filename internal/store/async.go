package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/metrics"
	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/resilience"
)

// DefaultQueueSize is the AsyncWriter queue capacity when none is configured.
const DefaultQueueSize = 256

const (
	kindSnapshot  = "snapshot"
	kindNarrative = "narrative"
)

// writeTimeout bounds a single background write.
const writeTimeout = 10 * time.Second

type writeJob struct {
	kind      string
	symbol    string
	snapshot  model.Microstructure
	narrative model.NarrativeIntelligence
}

// AsyncWriter is a fire-and-forget front for a Store. Writes are queued and
// applied in order by a single goroutine; callers never block and never see
// storage errors.
type AsyncWriter struct {
	store   Store
	breaker *resilience.CircuitBreaker
	metrics *metrics.Recorder
	log     *zap.Logger

	jobs chan writeJob
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

// AsyncOption configures an AsyncWriter.
type AsyncOption func(*AsyncWriter)

// WithMetrics records write outcomes on r.
func WithMetrics(r *metrics.Recorder) AsyncOption {
	return func(w *AsyncWriter) { w.metrics = r }
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) AsyncOption {
	return func(w *AsyncWriter) { w.breaker = cb }
}

// NewAsyncWriter starts the writer goroutine. queueSize <= 0 uses
// DefaultQueueSize.
func NewAsyncWriter(st Store, queueSize int, opts ...AsyncOption) *AsyncWriter {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	w := &AsyncWriter{
		store: st,
		log:   zap.L().With(zap.String("component", "store.async")),
		jobs:  make(chan writeJob, queueSize),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.breaker == nil {
		cfg := resilience.DefaultCircuitBreakerConfig()
		cfg.OnStateChange = func(from, to resilience.CircuitState) {
			w.log.Warn("store circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
		w.breaker = resilience.NewCircuitBreaker(cfg)
	}
	go w.run()
	return w
}

// EnqueueSnapshot queues a microstructure snapshot for symbol. It reports
// whether the snapshot was accepted.
func (w *AsyncWriter) EnqueueSnapshot(symbol string, m model.Microstructure) bool {
	// Depth is not persisted; drop it so the queue holds no shared slices.
	m.DepthLevels = nil
	return w.enqueue(writeJob{kind: kindSnapshot, symbol: symbol, snapshot: m})
}

// EnqueueNarrative queues a narrative snapshot for symbol.
func (w *AsyncWriter) EnqueueNarrative(symbol string, n model.NarrativeIntelligence) bool {
	return w.enqueue(writeJob{kind: kindNarrative, symbol: symbol, narrative: n})
}

func (w *AsyncWriter) enqueue(job writeJob) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.jobs <- job:
		return true
	default:
		w.log.Warn("store queue full, dropping write",
			zap.String("kind", job.kind),
			zap.String("symbol", job.symbol),
		)
		w.metrics.RecordStoreWrite(job.kind, metrics.WriteDropped)
		return false
	}
}

func (w *AsyncWriter) run() {
	defer close(w.done)
	for job := range w.jobs {
		w.apply(job)
	}
}

func (w *AsyncWriter) apply(job writeJob) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := w.breaker.Execute(ctx, func(ctx context.Context) error {
		if job.kind == kindNarrative {
			return w.store.StoreNarrative(ctx, job.symbol, job.narrative)
		}
		return w.store.StoreSnapshot(ctx, job.symbol, job.snapshot)
	})

	switch {
	case err == nil:
		w.metrics.RecordStoreWrite(job.kind, metrics.WriteOK)
	case errors.Is(err, resilience.ErrCircuitOpen):
		w.metrics.RecordStoreWrite(job.kind, metrics.WriteRejected)
	default:
		w.log.Warn("store write failed",
			zap.String("kind", job.kind),
			zap.String("symbol", job.symbol),
			zap.Error(err),
		)
		w.metrics.RecordStoreWrite(job.kind, metrics.WriteError)
	}
}

// Close stops accepting writes and waits for queued writes to finish or ctx
// to expire.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
