package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketRegimeValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		regime MarketRegime
		want   string
	}{
		{RegimeRiskOn, "Risk-on"},
		{RegimeRiskOff, "Risk-off"},
		{RegimeMeanReverting, "Mean-reverting"},
		{RegimeTrending, "Trending"},
		{RegimeHighVolatility, "High-volatility"},
		{RegimeCompression, "Compression"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.regime))
		})
	}
	assert.Len(t, MarketRegimes, len(tests))
}

func TestProbabilityDistribution_Percentages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		dist             ProbabilityDistribution
		bull, neut, bear float64
	}{
		{"sums to 100", ProbabilityDistribution{33, 34, 33}, 33, 34, 33},
		{"unnormalized", ProbabilityDistribution{1, 1, 2}, 25, 25, 50},
		{"all zero", ProbabilityDistribution{0, 0, 0}, 0, 0, 0},
		{"single outcome", ProbabilityDistribution{0, 0, 7}, 0, 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, n, r := tt.dist.Percentages()
			assert.InDelta(t, tt.bull, b, 1e-9)
			assert.InDelta(t, tt.neut, n, 1e-9)
			assert.InDelta(t, tt.bear, r, 1e-9)
		})
	}
}

func TestAnalysisRecord_WithMicrostructure(t *testing.T) {
	t.Parallel()

	orig := AnalysisRecord{
		Symbol:         "SPY",
		MarketRegime:   RegimeTrending,
		Microstructure: Microstructure{Bid: 100, Ask: 100.01},
	}

	next := orig.WithMicrostructure(Microstructure{Bid: 101, Ask: 101.02})

	assert.InDelta(t, 100.0, orig.Microstructure.Bid, 1e-9)
	assert.InDelta(t, 101.0, next.Microstructure.Bid, 1e-9)
	assert.Equal(t, orig.Symbol, next.Symbol)
	assert.Equal(t, orig.MarketRegime, next.MarketRegime)
}

func TestAnalysisRecord_JSONKeys(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(AnalysisRecord{Symbol: "AAPL"})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "microstructureData")
	assert.Contains(t, m, "narrativeIntelligence")
	assert.Contains(t, m, "groundingSources")
	assert.Equal(t, "AAPL", m["symbol"])
}

func TestMicrostructure_Sides(t *testing.T) {
	t.Parallel()

	m := Microstructure{DepthLevels: []DepthLevel{
		{Price: 99.9, Size: 100, Side: SideBid},
		{Price: 100.1, Size: 200, Side: SideAsk},
		{Price: 99.8, Size: 300, Side: SideBid},
	}}

	require.Len(t, m.Bids(), 2)
	require.Len(t, m.Asks(), 1)
	assert.InDelta(t, 99.8, m.Bids()[1].Price, 1e-9)
}

func TestEntities_Count(t *testing.T) {
	t.Parallel()

	e := Entities{Companies: []string{"Apple"}, Persons: []string{"Tim Cook", "Jensen Huang"}}
	assert.Equal(t, 3, e.Count())
	assert.Equal(t, 0, Entities{}.Count())
}
