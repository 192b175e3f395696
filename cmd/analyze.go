package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/market-intel/internal/model"
	"github.com/sells-group/market-intel/internal/session"
)

var (
	analyzeQuery string
	analyzeJSON  bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <symbol>",
	Short: "Fetch one grounded analysis for a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initSession(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rec, err := env.Controller.RequestAnalysis(ctx, args[0], analyzeQuery)
		if err != nil {
			f := session.NewFailure(err)
			fmt.Fprintf(os.Stderr, "%s\n%s\n", f.Message, f.Detail)
			return eris.Wrapf(err, "analyze %s", args[0])
		}

		if analyzeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}
		formatAnalysis(os.Stdout, rec)
		return nil
	},
}

func formatAnalysis(out io.Writer, r *model.AnalysisRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Asset:\t%s (%s)\n", r.AssetName, r.Symbol)
	_, _ = fmt.Fprintf(w, "Regime:\t%s\n", r.MarketRegime)

	horizons := []struct {
		name string
		h    model.HorizonAssessment
	}{
		{"Short term", r.DirectionalAssessment.ShortTerm},
		{"Medium term", r.DirectionalAssessment.MediumTerm},
		{"Long term", r.DirectionalAssessment.LongTerm},
	}
	for _, hz := range horizons {
		bull, neutral, bear := hz.h.Probability.Percentages()
		_, _ = fmt.Fprintf(w, "%s:\t%s\tbull %.0f%%  neutral %.0f%%  bear %.0f%%\n", hz.name, hz.h.Bias, bull, neutral, bear)
	}

	m := r.Microstructure
	_, _ = fmt.Fprintf(w, "Quote:\tbid %.4f  ask %.4f  spread %.4f\n", m.Bid, m.Ask, m.Spread)
	_, _ = fmt.Fprintf(w, "Liquidity:\t%.0f (%s flow)\n", m.LiquidityScore, m.OrderFlowBias)

	n := r.NarrativeIntelligence
	_, _ = fmt.Fprintf(w, "Sentiment:\t%.0f (%s)\n", n.SentimentIndex, n.NarrativeVelocity)
	_, _ = fmt.Fprintf(w, "Archetype:\t%s\n", n.NarrativeArchetype)
	_, _ = fmt.Fprintf(w, "Positioning:\t%s\n", r.StrategicPositioning.Bias)
	_, _ = fmt.Fprintf(w, "Confidence:\t%s\n", r.ConfidenceScore)
	if len(r.RiskFactors) > 0 {
		_, _ = fmt.Fprintf(w, "Risks:\t%s\n", strings.Join(r.RiskFactors, "; "))
	}
	_, _ = fmt.Fprintf(w, "Sources:\t%d\n", len(r.GroundingSources))
	_ = w.Flush()
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeQuery, "query", "", "focus question for the analysis")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full record as JSON")
	rootCmd.AddCommand(analyzeCmd)
}
