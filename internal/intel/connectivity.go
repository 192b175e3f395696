package intel

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/resilience"
)

// ConnectivityState is the outcome of a connectivity probe.
type ConnectivityState string

const (
	StateOnline   ConnectivityState = "online"
	StateDegraded ConnectivityState = "degraded"
	StateOffline  ConnectivityState = "offline"
)

// pingMaxOutputTokens caps the probe's output size.
const pingMaxOutputTokens = 5

// ConnectivityStatus reports provider reachability.
type ConnectivityStatus struct {
	Status    ConnectivityState `json:"status"`
	Message   string            `json:"message"`
	LatencyMS int64             `json:"latency,omitempty"`
}

// CheckConnectivity sends a minimal prompt to the provider. It never returns
// an error; failures are folded into the status.
func (c *Client) CheckConnectivity(ctx context.Context) ConnectivityStatus {
	start := time.Now()
	resp, err := c.provider.Generate(ctx, GenerateRequest{
		Phase:           PhasePing,
		Prompt:          c.prompt.Ping,
		MaxOutputTokens: pingMaxOutputTokens,
	})
	elapsed := time.Since(start)
	c.metrics.RecordIntelLatency(c.provider.Name(), PhasePing, elapsed.Seconds())

	if err != nil {
		status := probeFailure(err)
		zap.L().Warn("intel: connectivity probe failed",
			zap.String("provider", c.provider.Name()),
			zap.String("status", string(status.Status)),
			zap.String("upstream_message", resilience.ErrorMessage(err)),
			zap.Error(err),
		)
		return status
	}

	if strings.TrimSpace(resp.Text) == "" {
		return ConnectivityStatus{
			Status:  StateDegraded,
			Message: "API responded but payload was empty.",
		}
	}
	return ConnectivityStatus{
		Status:    StateOnline,
		Message:   "System connectivity established.",
		LatencyMS: elapsed.Milliseconds(),
	}
}

func probeFailure(err error) ConnectivityStatus {
	switch resilience.Classify(err) {
	case resilience.ClassQuota:
		return ConnectivityStatus{
			Status:  StateDegraded,
			Message: "Rate limit or quota active on this project.",
		}
	case resilience.ClassCredential:
		return ConnectivityStatus{
			Status:  StateOffline,
			Message: "Invalid or missing API key configuration.",
		}
	}
	if strings.Contains(strings.ToUpper(err.Error()), "API_KEY") {
		return ConnectivityStatus{
			Status:  StateOffline,
			Message: "Invalid or missing API key configuration.",
		}
	}
	return ConnectivityStatus{
		Status:  StateOffline,
		Message: "Network timeout or unreachable host.",
	}
}
