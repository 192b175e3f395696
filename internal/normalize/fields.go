package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/market-intel/internal/model"
)

func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func object(d map[string]any, key string) map[string]any {
	return asObject(d[key])
}

// str returns the trimmed string at key, or def when the value is missing,
// not a string, or blank.
func str(d map[string]any, key, def string) string {
	s, ok := d[key].(string)
	if !ok {
		return def
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

// strList returns the non-blank strings at key. A bare string is promoted to
// a one-element list. The result is never nil.
func strList(d map[string]any, key string) []string {
	out := []string{}
	switch v := d[key].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func num(d map[string]any, key string, def float64) float64 {
	if f, ok := number(d[key]); ok {
		return f
	}
	return def
}

func nonNegative(d map[string]any, key string, def float64) float64 {
	if f, ok := number(d[key]); ok && f >= 0 {
		return f
	}
	return def
}

// number accepts JSON numbers and numeric strings. Non-finite values are
// rejected.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(n), "%")), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// foldKey reduces an enum label to a comparison key: case-folded with
// separators and a trailing "phase" removed, so "Compression phase",
// "compression" and "COMPRESSION" all match.
func foldKey(s string) string {
	k := cases.Fold().String(strings.TrimSpace(s))
	k = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(k)
	return strings.TrimSuffix(k, "phase")
}

func matchEnum[T ~string](v any, values []T, def T) T {
	s, ok := v.(string)
	if !ok {
		return def
	}
	key := foldKey(s)
	if key == "" {
		return def
	}
	for _, candidate := range values {
		if foldKey(string(candidate)) == key {
			return candidate
		}
	}
	return def
}

func regime(v any) model.MarketRegime {
	return matchEnum(v, model.MarketRegimes, DefaultRegime)
}

func orderFlow(v any) model.OrderFlowBias {
	return matchEnum(v, []model.OrderFlowBias{model.FlowBullish, model.FlowBearish, model.FlowNeutral}, model.FlowNeutral)
}

func velocity(v any) model.NarrativeVelocity {
	return matchEnum(v, []model.NarrativeVelocity{
		model.VelocityAccelerating,
		model.VelocityDecelerating,
		model.VelocityStable,
	}, model.VelocityStable)
}

func confidence(v any) model.ConfidenceScore {
	return matchEnum(v, []model.ConfidenceScore{model.ConfidenceLow, model.ConfidenceMedium, model.ConfidenceHigh}, DefaultConfidence)
}

func depthSide(v any) (model.Side, bool) {
	side := matchEnum(v, []model.Side{model.SideBid, model.SideAsk}, "")
	return side, side != ""
}
