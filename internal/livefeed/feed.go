// Package livefeed drives the simulated quote stream. A Feed emits ticks for
// one symbol on a fixed period; Perturb derives the next microstructure from
// the current one.
package livefeed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the tick period when none is configured.
const DefaultInterval = 1500 * time.Millisecond

// Tick asks the record owner to advance the microstructure for Symbol.
type Tick struct {
	Symbol string
	At     time.Time
}

// Feed emits ticks for a single symbol until stopped.
type Feed struct {
	symbol   string
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start launches a feed for symbol that sends on out every interval.
// interval <= 0 uses DefaultInterval. Sends never outlive ctx or Stop.
func Start(ctx context.Context, symbol string, interval time.Duration, out chan<- Tick) *Feed {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	f := &Feed{
		symbol:   symbol,
		interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go f.run(ctx, out)
	return f
}

// Symbol returns the subscribed symbol.
func (f *Feed) Symbol() string { return f.symbol }

// Stop cancels the feed and waits for its goroutine to exit. Safe to call
// more than once.
func (f *Feed) Stop() {
	f.once.Do(f.cancel)
	<-f.done
}

// Done is closed once the feed has exited.
func (f *Feed) Done() <-chan struct{} { return f.done }

func (f *Feed) run(ctx context.Context, out chan<- Tick) {
	defer close(f.done)

	log := zap.L().With(zap.String("component", "livefeed"), zap.String("symbol", f.symbol))
	log.Debug("live feed started", zap.Duration("interval", f.interval))

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("live feed stopped")
			return
		case now := <-ticker.C:
			select {
			case out <- Tick{Symbol: f.symbol, At: now}:
			case <-ctx.Done():
				log.Debug("live feed stopped")
				return
			}
		}
	}
}
