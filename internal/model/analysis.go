package model

// MarketRegime is a coarse market-state classification.
type MarketRegime string

const (
	RegimeRiskOn         MarketRegime = "Risk-on"
	RegimeRiskOff        MarketRegime = "Risk-off"
	RegimeMeanReverting  MarketRegime = "Mean-reverting"
	RegimeTrending       MarketRegime = "Trending"
	RegimeHighVolatility MarketRegime = "High-volatility"
	RegimeCompression    MarketRegime = "Compression"
)

// MarketRegimes lists every regime in display order.
var MarketRegimes = []MarketRegime{
	RegimeRiskOn,
	RegimeRiskOff,
	RegimeMeanReverting,
	RegimeTrending,
	RegimeHighVolatility,
	RegimeCompression,
}

// ConfidenceScore grades how much weight an analysis deserves.
type ConfidenceScore string

const (
	ConfidenceLow    ConfidenceScore = "Low"
	ConfidenceMedium ConfidenceScore = "Medium"
	ConfidenceHigh   ConfidenceScore = "High"
)

// AnalysisRecord is the fully-populated result of one intelligence request.
// Every field is set after normalization. Only Microstructure changes after
// the initial fetch, and only by wholesale replacement.
type AnalysisRecord struct {
	AssetName              string                `json:"assetName"`
	Symbol                 string                `json:"symbol"`
	Timestamp              string                `json:"timestamp"`
	MarketRegime           MarketRegime          `json:"marketRegime"`
	DirectionalAssessment  DirectionalAssessment `json:"directionalAssessment"`
	TechnicalStructure     TechnicalStructure    `json:"technicalStructure"`
	MacroContext           MacroContext          `json:"macroContext"`
	Microstructure         Microstructure        `json:"microstructureData"`
	NarrativeIntelligence  NarrativeIntelligence `json:"narrativeIntelligence"`
	EventImpact            string                `json:"eventImpact"`
	RiskFactors            []string              `json:"riskFactors"`
	StrategicPositioning   StrategicPositioning  `json:"strategicPositioning"`
	ConfidenceScore        ConfidenceScore       `json:"confidenceScore"`
	ConfidenceRationale    []string              `json:"confidenceRationale"`
	UncertaintyExplanation string                `json:"uncertaintyExplanation"`
	GroundingSources       []GroundingSource     `json:"groundingSources"`
}

// WithMicrostructure returns a copy of the record carrying m in place of the
// current microstructure. The receiver is left untouched.
func (r AnalysisRecord) WithMicrostructure(m Microstructure) AnalysisRecord {
	r.Microstructure = m
	return r
}

// DirectionalAssessment holds the bias call for three horizons.
type DirectionalAssessment struct {
	ShortTerm  HorizonAssessment `json:"shortTerm"`
	MediumTerm HorizonAssessment `json:"mediumTerm"`
	LongTerm   HorizonAssessment `json:"longTerm"`
}

// HorizonAssessment is the bias and outcome distribution for one horizon.
type HorizonAssessment struct {
	Bias        string                  `json:"bias"`
	Probability ProbabilityDistribution `json:"probability"`
}

// ProbabilityDistribution holds relative weights for the three outcomes. The
// weights are not guaranteed to sum to 100.
type ProbabilityDistribution struct {
	Bullish float64 `json:"bullish"`
	Neutral float64 `json:"neutral"`
	Bearish float64 `json:"bearish"`
}

// Percentages re-derives the distribution as percentages of its sum. A zero
// sum is treated as 1 so an all-zero distribution yields zeros.
func (p ProbabilityDistribution) Percentages() (bullish, neutral, bearish float64) {
	total := p.Bullish + p.Neutral + p.Bearish
	if total == 0 {
		total = 1
	}
	return p.Bullish / total * 100, p.Neutral / total * 100, p.Bearish / total * 100
}

// TechnicalStructure summarizes chart structure.
type TechnicalStructure struct {
	Trend            string   `json:"trend"`
	SupportZones     []string `json:"supportZones"`
	ResistanceZones  []string `json:"resistanceZones"`
	Momentum         string   `json:"momentum"`
	VolatilityRegime string   `json:"volatilityRegime"`
	BreadthSignals   string   `json:"breadthSignals"`
}

// MacroContext summarizes the macro backdrop.
type MacroContext struct {
	InterestRateEnv     string `json:"interestRateEnv"`
	InflationTrends     string `json:"inflationTrends"`
	LiquidityConditions string `json:"liquidityConditions"`
	EarningsOutlook     string `json:"earningsOutlook"`
	SectorRotation      string `json:"sectorRotation"`
}

// StrategicPositioning is the suggested trade framing.
type StrategicPositioning struct {
	Bias           string `json:"bias"`
	Logic          string `json:"logic"`
	EntryZones     string `json:"entryZones"`
	StopZones      string `json:"stopZones"`
	PositionSizing string `json:"positionSizing"`
}

// GroundingSource is a citation returned by the provider's search tool.
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}
