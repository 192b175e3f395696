package model

// NarrativeVelocity describes how fast coverage of an asset is changing.
type NarrativeVelocity string

const (
	VelocityAccelerating NarrativeVelocity = "Accelerating"
	VelocityDecelerating NarrativeVelocity = "Decelerating"
	VelocityStable       NarrativeVelocity = "Stable"
)

// NarrativeIntelligence captures entities, sentiment and themes in
// market-moving discourse.
type NarrativeIntelligence struct {
	Entities           Entities           `json:"entities"`
	NarrativeVelocity  NarrativeVelocity  `json:"narrativeVelocity"`
	SentimentIndex     float64            `json:"sentimentIndex"` // -100..100
	SentimentBreakdown SentimentBreakdown `json:"sentimentBreakdown"`
	NarrativeArchetype string             `json:"narrativeArchetype"`
	KeyThemes          []string           `json:"keyThemes"`
}

// Entities groups extracted entities by category.
type Entities struct {
	Companies []string `json:"companies"`
	Persons   []string `json:"persons"`
	Products  []string `json:"products"`
}

// Count returns the number of entities across all categories.
func (e Entities) Count() int {
	return len(e.Companies) + len(e.Persons) + len(e.Products)
}

// SentimentBreakdown splits coverage by tone, in percent.
type SentimentBreakdown struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// NarrativeEntry is one persisted narrative sample.
type NarrativeEntry struct {
	ID             int64    `json:"id"`
	Symbol         string   `json:"symbol"`
	Timestamp      int64    `json:"timestamp"` // epoch ms
	SentimentIndex float64  `json:"sentimentIndex"`
	Archetype      string   `json:"archetype"`
	Entities       Entities `json:"entities"`
}
