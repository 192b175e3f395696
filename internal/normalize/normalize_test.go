package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-intel/internal/model"
)

var fixedNow = time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func defaultHorizon() model.HorizonAssessment {
	return model.HorizonAssessment{Bias: "Neutral", Probability: DefaultProbability}
}

func TestNormalize_EmptyObjectUsesEveryDefault(t *testing.T) {
	rec := Normalize(decode(t, `{}`), "SPY", fixedNow)

	want := model.AnalysisRecord{
		AssetName:    "SPY",
		Symbol:       "SPY",
		Timestamp:    "2026-03-09T14:30:00.000Z",
		MarketRegime: model.RegimeTrending,
		DirectionalAssessment: model.DirectionalAssessment{
			ShortTerm:  defaultHorizon(),
			MediumTerm: defaultHorizon(),
			LongTerm:   defaultHorizon(),
		},
		TechnicalStructure: model.TechnicalStructure{
			Trend:            "Lateral",
			SupportZones:     []string{},
			ResistanceZones:  []string{},
			Momentum:         "Neutral",
			VolatilityRegime: "Normal",
			BreadthSignals:   "Neutral",
		},
		MacroContext: model.MacroContext{
			InterestRateEnv:     "Unchanged",
			InflationTrends:     "Stable",
			LiquidityConditions: "Nominal",
			EarningsOutlook:     "Neutral",
			SectorRotation:      "None detected",
		},
		Microstructure: model.Microstructure{
			Bid:            100,
			Ask:            100.01,
			Spread:         0.01,
			LiquidityScore: 50,
			OrderFlowBias:  model.FlowNeutral,
			DepthLevels:    []model.DepthLevel{},
		},
		NarrativeIntelligence: model.NarrativeIntelligence{
			Entities: model.Entities{
				Companies: []string{},
				Persons:   []string{},
				Products:  []string{},
			},
			NarrativeVelocity:  model.VelocityStable,
			SentimentIndex:     0,
			SentimentBreakdown: model.SentimentBreakdown{Positive: 0, Neutral: 100, Negative: 0},
			NarrativeArchetype: "Informationally Efficient",
			KeyThemes:          []string{},
		},
		EventImpact: "No major events identified.",
		RiskFactors: []string{},
		StrategicPositioning: model.StrategicPositioning{
			Bias:           "Neutral",
			Logic:          "Waiting for directional confirmation.",
			EntryZones:     "N/A",
			StopZones:      "N/A",
			PositionSizing: "0%",
		},
		ConfidenceScore:        model.ConfidenceMedium,
		ConfidenceRationale:    []string{},
		UncertaintyExplanation: "Insufficient data for high-confidence modeling.",
		GroundingSources:       []model.GroundingSource{},
	}

	assert.Equal(t, want, rec)
}

func TestNormalize_NonObjectInputs(t *testing.T) {
	inputs := []any{nil, "text", 42.0, []any{map[string]any{"symbol": "X"}}}
	empty := Normalize(map[string]any{}, "QQQ", fixedNow)

	for _, in := range inputs {
		assert.Equal(t, empty, Normalize(in, "QQQ", fixedNow))
	}
}

func TestNormalize_RequestedSymbolWins(t *testing.T) {
	rec := Normalize(decode(t, `{"symbol":"MSFT","assetName":"Microsoft Corp"}`), "AAPL", fixedNow)

	assert.Equal(t, "AAPL", rec.Symbol)
	assert.Equal(t, "Microsoft Corp", rec.AssetName)
}

func TestNormalize_PresentFieldsUsedVerbatim(t *testing.T) {
	rec := Normalize(decode(t, `{
		"assetName": "Nvidia Corp",
		"timestamp": "2026-03-09T10:00:00Z",
		"marketRegime": "Risk-off",
		"eventImpact": "Earnings beat.",
		"riskFactors": ["Export controls", "Valuation"],
		"confidenceScore": "High",
		"confidenceRationale": ["Strong breadth"],
		"uncertaintyExplanation": "Macro data pending.",
		"technicalStructure": {"trend": "Up", "supportZones": ["850", "820"]},
		"macroContext": {"sectorRotation": "Into semis"},
		"strategicPositioning": {"bias": "Long", "positionSizing": "2%"}
	}`), "NVDA", fixedNow)

	assert.Equal(t, "Nvidia Corp", rec.AssetName)
	assert.Equal(t, "2026-03-09T10:00:00Z", rec.Timestamp)
	assert.Equal(t, model.RegimeRiskOff, rec.MarketRegime)
	assert.Equal(t, "Earnings beat.", rec.EventImpact)
	assert.Equal(t, []string{"Export controls", "Valuation"}, rec.RiskFactors)
	assert.Equal(t, model.ConfidenceHigh, rec.ConfidenceScore)
	assert.Equal(t, []string{"Strong breadth"}, rec.ConfidenceRationale)
	assert.Equal(t, "Macro data pending.", rec.UncertaintyExplanation)

	assert.Equal(t, "Up", rec.TechnicalStructure.Trend)
	assert.Equal(t, []string{"850", "820"}, rec.TechnicalStructure.SupportZones)
	assert.Equal(t, "Neutral", rec.TechnicalStructure.Momentum)
	assert.Empty(t, rec.TechnicalStructure.ResistanceZones)

	assert.Equal(t, "Into semis", rec.MacroContext.SectorRotation)
	assert.Equal(t, "Unchanged", rec.MacroContext.InterestRateEnv)

	assert.Equal(t, "Long", rec.StrategicPositioning.Bias)
	assert.Equal(t, "2%", rec.StrategicPositioning.PositionSizing)
	assert.Equal(t, "N/A", rec.StrategicPositioning.EntryZones)
}

func TestNormalize_DirectionalIsFieldLocal(t *testing.T) {
	rec := Normalize(decode(t, `{"directionalAssessment": {
		"shortTerm": {"bias": "Bullish", "probability": {"bullish": 60, "neutral": 25, "bearish": 15}},
		"mediumTerm": {"probability": {"bullish": 50}}
	}}`), "SPY", fixedNow)

	da := rec.DirectionalAssessment
	assert.Equal(t, "Bullish", da.ShortTerm.Bias)
	assert.Equal(t, model.ProbabilityDistribution{Bullish: 60, Neutral: 25, Bearish: 15}, da.ShortTerm.Probability)

	assert.Equal(t, "Neutral", da.MediumTerm.Bias)
	assert.Equal(t, model.ProbabilityDistribution{Bullish: 50, Neutral: 34, Bearish: 33}, da.MediumTerm.Probability)

	assert.Equal(t, defaultHorizon(), da.LongTerm)
}

func TestNormalize_ZeroProbabilitiesKept(t *testing.T) {
	rec := Normalize(decode(t, `{"directionalAssessment": {
		"longTerm": {"bias": "Flat", "probability": {"bullish": 0, "neutral": 0, "bearish": 0}}
	}}`), "SPY", fixedNow)

	p := rec.DirectionalAssessment.LongTerm.Probability
	assert.Equal(t, model.ProbabilityDistribution{}, p)

	b, n, r := p.Percentages()
	assert.Zero(t, b)
	assert.Zero(t, n)
	assert.Zero(t, r)
}

func TestNormalize_RegimeMatching(t *testing.T) {
	tests := []struct {
		in   string
		want model.MarketRegime
	}{
		{"Risk-on", model.RegimeRiskOn},
		{"risk on", model.RegimeRiskOn},
		{"Mean reverting", model.RegimeMeanReverting},
		{"HIGH_VOLATILITY", model.RegimeHighVolatility},
		{"High volatility", model.RegimeHighVolatility},
		{"Compression phase", model.RegimeCompression},
		{"Sideways chop", model.RegimeTrending},
		{"", model.RegimeTrending},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			rec := Normalize(map[string]any{"marketRegime": tt.in}, "SPY", fixedNow)
			assert.Equal(t, tt.want, rec.MarketRegime)
		})
	}

	rec := Normalize(map[string]any{"marketRegime": 3.0}, "SPY", fixedNow)
	assert.Equal(t, model.RegimeTrending, rec.MarketRegime)
}

func TestNormalize_Microstructure(t *testing.T) {
	rec := Normalize(decode(t, `{"microstructureData": {
		"bid": 450.10,
		"ask": "450.14",
		"liquidityScore": 140,
		"orderFlowBias": "bearish",
		"depthLevels": [
			{"price": 450.10, "size": 1200, "side": "bid"},
			{"price": 450.14, "size": 900, "side": "ASK"},
			{"price": "bad", "size": 10, "side": "bid"},
			{"price": 450.2, "size": 10, "side": "middle"},
			"junk"
		]
	}}`), "SPY", fixedNow)

	m := rec.Microstructure
	assert.InDelta(t, 450.10, m.Bid, 1e-9)
	assert.InDelta(t, 450.14, m.Ask, 1e-9)
	assert.InDelta(t, 0.01, m.Spread, 1e-9)
	assert.InDelta(t, 100.0, m.LiquidityScore, 1e-9)
	assert.Equal(t, model.FlowBearish, m.OrderFlowBias)
	require.Len(t, m.DepthLevels, 2)
	assert.Equal(t, model.SideBid, m.DepthLevels[0].Side)
	assert.Equal(t, model.SideAsk, m.DepthLevels[1].Side)
}

func TestNormalize_LegacyMicrostructureKey(t *testing.T) {
	rec := Normalize(decode(t, `{"microstructure": {"bid": 10, "ask": 10.5, "spread": 0.5}}`), "GOLD", fixedNow)

	assert.InDelta(t, 10.0, rec.Microstructure.Bid, 1e-9)
	assert.InDelta(t, 0.5, rec.Microstructure.Spread, 1e-9)
	assert.InDelta(t, 50.0, rec.Microstructure.LiquidityScore, 1e-9)
}

func TestNormalize_Narrative(t *testing.T) {
	rec := Normalize(decode(t, `{"narrativeIntelligence": {
		"entities": {"companies": ["Apple", 7, ""], "persons": "Tim Cook"},
		"narrativeVelocity": "accelerating",
		"sentimentIndex": -250,
		"sentimentBreakdown": {"positive": 20, "negative": 30},
		"keyThemes": ["AI capex"]
	}}`), "AAPL", fixedNow)

	n := rec.NarrativeIntelligence
	assert.Equal(t, []string{"Apple"}, n.Entities.Companies)
	assert.Equal(t, []string{"Tim Cook"}, n.Entities.Persons)
	assert.Equal(t, []string{}, n.Entities.Products)
	assert.Equal(t, model.VelocityAccelerating, n.NarrativeVelocity)
	assert.InDelta(t, -100.0, n.SentimentIndex, 1e-9)
	assert.Equal(t, model.SentimentBreakdown{Positive: 20, Neutral: 100, Negative: 30}, n.SentimentBreakdown)
	assert.Equal(t, DefaultNarrativeArchetype, n.NarrativeArchetype)
	assert.Equal(t, []string{"AI capex"}, n.KeyThemes)
}

func TestNormalize_BlankAndMistypedStringsFallBack(t *testing.T) {
	rec := Normalize(map[string]any{
		"assetName":       "   ",
		"eventImpact":     12.0,
		"confidenceScore": "Very high",
	}, "DXY", fixedNow)

	assert.Equal(t, "DXY", rec.AssetName)
	assert.Equal(t, DefaultEventImpact, rec.EventImpact)
	assert.Equal(t, model.ConfidenceMedium, rec.ConfidenceScore)
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{1.5, 1.5, true},
		{json.Number("2.25"), 2.25, true},
		{" 3 ", 3, true},
		{"45%", 45, true},
		{"abc", 0, false},
		{true, 0, false},
		{nil, 0, false},
		{"NaN", 0, false},
	}

	for _, tt := range tests {
		got, ok := number(tt.in)
		assert.Equal(t, tt.ok, ok, "input %v", tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, "input %v", tt.in)
	}
}
