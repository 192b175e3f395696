// Package store persists microstructure and narrative history partitioned
// by symbol. History is append-only.
package store

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/market-intel/internal/model"
)

// DefaultHistoryLimit is used when a history query passes limit <= 0.
const DefaultHistoryLimit = 60

// ErrStorageUnavailable is returned when the backing database cannot be
// opened or migrated.
var ErrStorageUnavailable = eris.New("storage unavailable")

// Store defines the persistence interface for snapshot history.
type Store interface {
	// Initialize opens the database and applies pending migrations. It is
	// idempotent and safe for concurrent use. Other methods call it lazily.
	Initialize(ctx context.Context) error

	StoreSnapshot(ctx context.Context, symbol string, m model.Microstructure) error
	StoreNarrative(ctx context.Context, symbol string, n model.NarrativeIntelligence) error

	// GetRecentHistory returns the most recent limit snapshots for symbol,
	// oldest first.
	GetRecentHistory(ctx context.Context, symbol string, limit int) ([]model.SnapshotEntry, error)
	// GetNarrativeHistory returns the most recent limit narrative samples for
	// symbol, oldest first.
	GetNarrativeHistory(ctx context.Context, symbol string, limit int) ([]model.NarrativeEntry, error)

	Close() error
}

// initializer runs an open-and-migrate function once. Concurrent callers
// share a single in-flight attempt; a failed attempt can be retried.
type initializer struct {
	group singleflight.Group
	mu    sync.Mutex
	done  bool
}

func (i *initializer) ready() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.done
}

func (i *initializer) run(ctx context.Context, fn func(ctx context.Context) error) error {
	if i.ready() {
		return nil
	}
	_, err, _ := i.group.Do("init", func() (any, error) {
		if i.ready() {
			return nil, nil
		}
		if err := fn(ctx); err != nil {
			return nil, err
		}
		i.mu.Lock()
		i.done = true
		i.mu.Unlock()
		return nil, nil
	})
	return err
}

func (i *initializer) reset() {
	i.mu.Lock()
	i.done = false
	i.mu.Unlock()
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}

// reverse flips a newest-first result into chronological order.
func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func unavailable(err error, msg string) error {
	return eris.Wrapf(ErrStorageUnavailable, "%s: %v", msg, err)
}
