package livefeed

import (
	"math"

	"github.com/sells-group/market-intel/internal/model"
)

// Rand is the source of uniform values in [0, 1). *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
}

// Params bounds the simulated jitter.
type Params struct {
	// Volatility scales the shared drift as a fraction of the ask.
	Volatility float64
	// SpreadFloor is the minimum spread after a tick.
	SpreadFloor float64
	// LiquidityFloor is the lower bound for the liquidity score. The upper
	// bound is always 100.
	LiquidityFloor float64
	// LiquidityJitter is the full width of the liquidity score step.
	LiquidityJitter float64
	// SizeJitter is the full width of the depth size step.
	SizeJitter float64
	// MinDepthSize floors every depth level's size.
	MinDepthSize float64
}

// DefaultParams returns the standard simulation bounds.
func DefaultParams() Params {
	return Params{
		Volatility:      0.0005,
		SpreadFloor:     0.01,
		LiquidityFloor:  0,
		LiquidityJitter: 5,
		SizeJitter:      200,
		MinDepthSize:    10,
	}
}

// Perturb returns the next microstructure after one tick. A single drift is
// applied to bid, ask and every depth price so the book shifts as a unit. The
// input is not modified.
func Perturb(m model.Microstructure, rnd Rand, p Params) model.Microstructure {
	drift := (rnd.Float64() - 0.5) * m.Ask * p.Volatility

	next := m
	next.Bid = m.Bid + drift
	next.Ask = m.Ask + drift
	next.Spread = math.Max(p.SpreadFloor, next.Ask-next.Bid)
	next.LiquidityScore = clamp(m.LiquidityScore+(rnd.Float64()-0.5)*p.LiquidityJitter, p.LiquidityFloor, 100)

	next.DepthLevels = make([]model.DepthLevel, len(m.DepthLevels))
	for i, l := range m.DepthLevels {
		l.Price += drift
		l.Size = math.Max(p.MinDepthSize, l.Size+math.Floor((rnd.Float64()-0.5)*p.SizeJitter))
		next.DepthLevels[i] = l
	}
	return next
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
