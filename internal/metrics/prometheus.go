// Package metrics records service metrics with Prometheus. A nil *Recorder
// is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store write outcomes.
const (
	WriteOK       = "ok"
	WriteError    = "error"
	WriteDropped  = "dropped"
	WriteRejected = "rejected"
)

// Recorder holds the service's Prometheus collectors.
type Recorder struct {
	intelRequests *prometheus.CounterVec
	intelLatency  *prometheus.HistogramVec
	storeWrites   *prometheus.CounterVec
	feedTicks     *prometheus.CounterVec
	lastBid       *prometheus.GaugeVec
	lastAsk       *prometheus.GaugeVec
	streamClients prometheus.Gauge
}

// New creates a recorder registered with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		intelRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_intel_requests_total",
				Help: "Intelligence requests by provider and outcome class",
			},
			[]string{"provider", "outcome"},
		),
		intelLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "market_intel_request_duration_seconds",
				Help:    "Duration of intelligence provider calls in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"provider", "operation"},
		),
		storeWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_intel_store_writes_total",
				Help: "Snapshot store writes by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		feedTicks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_intel_feed_ticks_total",
				Help: "Live feed ticks applied to the current record",
			},
			[]string{"symbol"},
		),
		lastBid: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "market_intel_last_bid",
				Help: "Last simulated bid for a symbol",
			},
			[]string{"symbol"},
		),
		lastAsk: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "market_intel_last_ask",
				Help: "Last simulated ask for a symbol",
			},
			[]string{"symbol"},
		),
		streamClients: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "market_intel_stream_clients",
				Help: "Connected websocket clients",
			},
		),
	}
}

// RecordIntelRequest counts a finished intelligence request. outcome is
// "success" or an error class.
func (r *Recorder) RecordIntelRequest(provider, outcome string) {
	if r == nil {
		return
	}
	r.intelRequests.WithLabelValues(provider, outcome).Inc()
}

// RecordIntelLatency records provider call latency in seconds.
func (r *Recorder) RecordIntelLatency(provider, op string, seconds float64) {
	if r == nil {
		return
	}
	r.intelLatency.WithLabelValues(provider, op).Observe(seconds)
}

// RecordStoreWrite counts a snapshot store write attempt.
func (r *Recorder) RecordStoreWrite(kind, outcome string) {
	if r == nil {
		return
	}
	r.storeWrites.WithLabelValues(kind, outcome).Inc()
}

// RecordTick records a live feed tick and the resulting quote.
func (r *Recorder) RecordTick(symbol string, bid, ask float64) {
	if r == nil {
		return
	}
	r.feedTicks.WithLabelValues(symbol).Inc()
	r.lastBid.WithLabelValues(symbol).Set(bid)
	r.lastAsk.WithLabelValues(symbol).Set(ask)
}

// SetStreamClients sets the number of connected stream clients.
func (r *Recorder) SetStreamClients(n int) {
	if r == nil {
		return
	}
	r.streamClients.Set(float64(n))
}
