package model

// OrderFlowBias is the net direction of order flow.
type OrderFlowBias string

const (
	FlowBullish OrderFlowBias = "Bullish"
	FlowBearish OrderFlowBias = "Bearish"
	FlowNeutral OrderFlowBias = "Neutral"
)

// Side identifies the book side of a depth level.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Microstructure is a simulated order-book snapshot.
type Microstructure struct {
	Bid            float64       `json:"bid"`
	Ask            float64       `json:"ask"`
	Spread         float64       `json:"spread"`
	LiquidityScore float64       `json:"liquidityScore"` // 0-100
	OrderFlowBias  OrderFlowBias `json:"orderFlowBias"`
	DepthLevels    []DepthLevel  `json:"depthLevels"`
}

// DepthLevel is one price level of the simulated book.
type DepthLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
	Side  Side    `json:"side"`
}

// Bids returns bid levels in the order they appear.
func (m Microstructure) Bids() []DepthLevel {
	return m.levels(SideBid)
}

// Asks returns ask levels in the order they appear.
func (m Microstructure) Asks() []DepthLevel {
	return m.levels(SideAsk)
}

func (m Microstructure) levels(side Side) []DepthLevel {
	var out []DepthLevel
	for _, l := range m.DepthLevels {
		if l.Side == side {
			out = append(out, l)
		}
	}
	return out
}

// SnapshotEntry is one persisted microstructure sample.
type SnapshotEntry struct {
	ID             int64   `json:"id"`
	Symbol         string  `json:"symbol"`
	Timestamp      int64   `json:"timestamp"` // epoch ms
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Spread         float64 `json:"spread"`
	LiquidityScore float64 `json:"liquidityScore"`
}
