package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordIntelRequest("gemini", "success")
	r.RecordIntelRequest("gemini", "success")
	r.RecordIntelRequest("gemini", "quota")
	r.RecordIntelLatency("gemini", "analysis", 1.5)
	r.RecordStoreWrite("snapshot", WriteOK)
	r.RecordStoreWrite("snapshot", WriteDropped)
	r.RecordTick("SPY", 510.1, 510.2)
	r.SetStreamClients(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.intelRequests.WithLabelValues("gemini", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.intelRequests.WithLabelValues("gemini", "quota")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.storeWrites.WithLabelValues("snapshot", WriteDropped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.feedTicks.WithLabelValues("SPY")))
	assert.InDelta(t, 510.1, testutil.ToFloat64(r.lastBid.WithLabelValues("SPY")), 0.0001)
	assert.InDelta(t, 510.2, testutil.ToFloat64(r.lastAsk.WithLabelValues("SPY")), 0.0001)
	assert.Equal(t, 3.0, testutil.ToFloat64(r.streamClients))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "market_intel_request_duration_seconds")
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RecordIntelRequest("gemini", "success")
		r.RecordIntelLatency("gemini", "ping", 0.1)
		r.RecordStoreWrite("narrative", WriteError)
		r.RecordTick("SPY", 1, 2)
		r.SetStreamClients(1)
	})
}
