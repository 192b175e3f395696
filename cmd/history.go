package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/market-intel/internal/export"
	"github.com/sells-group/market-intel/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history <symbol>",
	Short: "Show recorded microstructure and narrative history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		symbol := strings.TrimSpace(args[0])

		st, err := initStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		narrative, _ := cmd.Flags().GetBool("narrative")
		exportPath, _ := cmd.Flags().GetString("export")

		snapshots, err := st.GetRecentHistory(ctx, symbol, limit)
		if err != nil {
			return eris.Wrap(err, "history")
		}
		narratives, err := st.GetNarrativeHistory(ctx, symbol, limit)
		if err != nil {
			return eris.Wrap(err, "history")
		}

		if exportPath != "" {
			if err := export.WriteXLSX(exportPath, snapshots, narratives); err != nil {
				return err
			}
			zap.L().Info("history exported",
				zap.String("symbol", symbol),
				zap.String("path", exportPath),
				zap.Int("snapshots", len(snapshots)),
				zap.Int("narratives", len(narratives)),
			)
			return nil
		}

		if narrative {
			if len(narratives) == 0 {
				fmt.Fprintln(os.Stderr, "No narrative history found.")
				return nil
			}
			formatNarratives(os.Stdout, narratives)
			return nil
		}
		if len(snapshots) == 0 {
			fmt.Fprintln(os.Stderr, "No microstructure history found.")
			return nil
		}
		formatSnapshots(os.Stdout, snapshots)
		return nil
	},
}

func formatSnapshots(out io.Writer, entries []model.SnapshotEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tBID\tASK\tSPREAD\tLIQUIDITY")
	_, _ = fmt.Fprintln(w, "----\t---\t---\t------\t---------")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.4f\t%.0f\n",
			formatMillis(e.Timestamp), e.Bid, e.Ask, e.Spread, e.LiquidityScore)
	}
	_ = w.Flush()
}

func formatNarratives(out io.Writer, entries []model.NarrativeEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tSENTIMENT\tARCHETYPE\tENTITIES")
	_, _ = fmt.Fprintln(w, "----\t---------\t---------\t--------")
	for _, e := range entries {
		archetype := e.Archetype
		if len(archetype) > 40 {
			archetype = archetype[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%.0f\t%s\t%d\n",
			formatMillis(e.Timestamp), e.SentimentIndex, archetype, e.Entities.Count())
	}
	_ = w.Flush()
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

func init() {
	historyCmd.Flags().Int("limit", 0, "number of most recent entries (default 60)")
	historyCmd.Flags().Bool("narrative", false, "show narrative history instead of microstructure")
	historyCmd.Flags().String("export", "", "write both histories to an .xlsx file")
	rootCmd.AddCommand(historyCmd)
}
