package session

import (
	"time"

	"github.com/sells-group/market-intel/internal/intel"
	"github.com/sells-group/market-intel/internal/model"
)

// EventType identifies what changed.
type EventType string

const (
	EventAnalysis       EventType = "analysis"
	EventMicrostructure EventType = "microstructure"
	EventFailure        EventType = "failure"
	EventHealth         EventType = "health"
)

// Event is published to subscribers on every state change.
type Event struct {
	Type           EventType                 `json:"type"`
	Symbol         string                    `json:"symbol,omitempty"`
	RequestID      string                    `json:"requestId,omitempty"`
	Record         *model.AnalysisRecord     `json:"record,omitempty"`
	Microstructure *model.Microstructure     `json:"microstructure,omitempty"`
	Failure        *Failure                  `json:"failure,omitempty"`
	Health         *intel.ConnectivityStatus `json:"health,omitempty"`
	At             time.Time                 `json:"at"`
}

// Subscribe returns a channel of controller events and a func that
// unsubscribes and closes it. Events are dropped for subscribers whose
// buffer is full.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, c.cfg.SubscriberBuffer)

	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once bool
	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if once {
			return
		}
		once = true
		delete(c.subs, id)
		close(ch)
	}
}

func (c *Controller) publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = c.now()
	}
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
