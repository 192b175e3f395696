// Package normalize turns a loosely-typed analysis document into a
// schema-complete model.AnalysisRecord.
package normalize

import (
	"time"

	"github.com/sells-group/market-intel/internal/model"
)

// TimestampLayout matches the millisecond ISO-8601 form browsers emit.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Defaults substituted for missing or invalid fields.
const (
	DefaultRegime                 = model.RegimeTrending
	DefaultBias                   = "Neutral"
	DefaultTrend                  = "Lateral"
	DefaultMomentum               = "Neutral"
	DefaultBreadth                = "Neutral"
	DefaultVolatilityRegime       = "Normal"
	DefaultInterestRateEnv        = "Unchanged"
	DefaultInflationTrends        = "Stable"
	DefaultLiquidityConditions    = "Nominal"
	DefaultEarningsOutlook        = "Neutral"
	DefaultSectorRotation         = "None detected"
	DefaultNarrativeArchetype     = "Informationally Efficient"
	DefaultEventImpact            = "No major events identified."
	DefaultPositioningLogic       = "Waiting for directional confirmation."
	DefaultEntryZones             = "N/A"
	DefaultStopZones              = "N/A"
	DefaultPositionSizing         = "0%"
	DefaultConfidence             = model.ConfidenceMedium
	DefaultUncertaintyExplanation = "Insufficient data for high-confidence modeling."
)

// DefaultProbability is the distribution used for a missing horizon.
var DefaultProbability = model.ProbabilityDistribution{Bullish: 33, Neutral: 34, Bearish: 33}

// DefaultMicrostructure returns the placeholder book used when the document
// carries none.
func DefaultMicrostructure() model.Microstructure {
	return model.Microstructure{
		Bid:            100,
		Ask:            100.01,
		Spread:         0.01,
		LiquidityScore: 50,
		OrderFlowBias:  model.FlowNeutral,
		DepthLevels:    []model.DepthLevel{},
	}
}

// Normalize builds an AnalysisRecord from raw, substituting a fixed default
// for every absent or mistyped field. The requested symbol always wins over
// any symbol in the document. GroundingSources is left empty for the caller.
// Normalize never fails.
func Normalize(raw any, symbol string, now time.Time) model.AnalysisRecord {
	d := asObject(raw)

	return model.AnalysisRecord{
		AssetName:              str(d, "assetName", symbol),
		Symbol:                 symbol,
		Timestamp:              str(d, "timestamp", now.UTC().Format(TimestampLayout)),
		MarketRegime:           regime(d["marketRegime"]),
		DirectionalAssessment:  directional(object(d, "directionalAssessment")),
		TechnicalStructure:     technical(object(d, "technicalStructure")),
		MacroContext:           macro(object(d, "macroContext")),
		Microstructure:         microstructure(microstructureDoc(d)),
		NarrativeIntelligence:  narrative(object(d, "narrativeIntelligence")),
		EventImpact:            str(d, "eventImpact", DefaultEventImpact),
		RiskFactors:            strList(d, "riskFactors"),
		StrategicPositioning:   positioning(object(d, "strategicPositioning")),
		ConfidenceScore:        confidence(d["confidenceScore"]),
		ConfidenceRationale:    strList(d, "confidenceRationale"),
		UncertaintyExplanation: str(d, "uncertaintyExplanation", DefaultUncertaintyExplanation),
		GroundingSources:       []model.GroundingSource{},
	}
}

func directional(d map[string]any) model.DirectionalAssessment {
	return model.DirectionalAssessment{
		ShortTerm:  horizon(object(d, "shortTerm")),
		MediumTerm: horizon(object(d, "mediumTerm")),
		LongTerm:   horizon(object(d, "longTerm")),
	}
}

func horizon(d map[string]any) model.HorizonAssessment {
	p := object(d, "probability")
	return model.HorizonAssessment{
		Bias: str(d, "bias", DefaultBias),
		Probability: model.ProbabilityDistribution{
			Bullish: nonNegative(p, "bullish", DefaultProbability.Bullish),
			Neutral: nonNegative(p, "neutral", DefaultProbability.Neutral),
			Bearish: nonNegative(p, "bearish", DefaultProbability.Bearish),
		},
	}
}

func technical(d map[string]any) model.TechnicalStructure {
	return model.TechnicalStructure{
		Trend:            str(d, "trend", DefaultTrend),
		SupportZones:     strList(d, "supportZones"),
		ResistanceZones:  strList(d, "resistanceZones"),
		Momentum:         str(d, "momentum", DefaultMomentum),
		VolatilityRegime: str(d, "volatilityRegime", DefaultVolatilityRegime),
		BreadthSignals:   str(d, "breadthSignals", DefaultBreadth),
	}
}

func macro(d map[string]any) model.MacroContext {
	return model.MacroContext{
		InterestRateEnv:     str(d, "interestRateEnv", DefaultInterestRateEnv),
		InflationTrends:     str(d, "inflationTrends", DefaultInflationTrends),
		LiquidityConditions: str(d, "liquidityConditions", DefaultLiquidityConditions),
		EarningsOutlook:     str(d, "earningsOutlook", DefaultEarningsOutlook),
		SectorRotation:      str(d, "sectorRotation", DefaultSectorRotation),
	}
}

func positioning(d map[string]any) model.StrategicPositioning {
	return model.StrategicPositioning{
		Bias:           str(d, "bias", DefaultBias),
		Logic:          str(d, "logic", DefaultPositioningLogic),
		EntryZones:     str(d, "entryZones", DefaultEntryZones),
		StopZones:      str(d, "stopZones", DefaultStopZones),
		PositionSizing: str(d, "positionSizing", DefaultPositionSizing),
	}
}

// microstructureDoc prefers the current key and falls back to the key used
// by the first prompt revision.
func microstructureDoc(d map[string]any) map[string]any {
	if m := object(d, "microstructureData"); m != nil {
		return m
	}
	return object(d, "microstructure")
}

func microstructure(d map[string]any) model.Microstructure {
	def := DefaultMicrostructure()
	return model.Microstructure{
		Bid:            num(d, "bid", def.Bid),
		Ask:            num(d, "ask", def.Ask),
		Spread:         num(d, "spread", def.Spread),
		LiquidityScore: clamp(num(d, "liquidityScore", def.LiquidityScore), 0, 100),
		OrderFlowBias:  orderFlow(d["orderFlowBias"]),
		DepthLevels:    depthLevels(d["depthLevels"]),
	}
}

func depthLevels(v any) []model.DepthLevel {
	items, _ := v.([]any)
	out := make([]model.DepthLevel, 0, len(items))
	for _, item := range items {
		lvl, ok := item.(map[string]any)
		if !ok {
			continue
		}
		price, okPrice := number(lvl["price"])
		size, okSize := number(lvl["size"])
		side, okSide := depthSide(lvl["side"])
		if !okPrice || !okSize || !okSide {
			continue
		}
		out = append(out, model.DepthLevel{Price: price, Size: size, Side: side})
	}
	return out
}

func narrative(d map[string]any) model.NarrativeIntelligence {
	e := object(d, "entities")
	b := object(d, "sentimentBreakdown")
	return model.NarrativeIntelligence{
		Entities: model.Entities{
			Companies: strList(e, "companies"),
			Persons:   strList(e, "persons"),
			Products:  strList(e, "products"),
		},
		NarrativeVelocity: velocity(d["narrativeVelocity"]),
		SentimentIndex:    clamp(num(d, "sentimentIndex", 0), -100, 100),
		SentimentBreakdown: model.SentimentBreakdown{
			Positive: nonNegative(b, "positive", 0),
			Neutral:  nonNegative(b, "neutral", 100),
			Negative: nonNegative(b, "negative", 0),
		},
		NarrativeArchetype: str(d, "narrativeArchetype", DefaultNarrativeArchetype),
		KeyThemes:          strList(d, "keyThemes"),
	}
}
