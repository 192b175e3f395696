// Package export writes stored history to spreadsheet files.
package export

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/market-intel/internal/model"
)

// Sheet names.
const (
	SheetMicrostructure = "microstructure"
	SheetNarrative      = "narrative"
)

var (
	microstructureHeader = []string{"id", "symbol", "timestamp", "time", "bid", "ask", "spread", "liquidity_score"}
	narrativeHeader      = []string{"id", "symbol", "timestamp", "time", "sentiment_index", "archetype", "companies", "persons", "products"}
)

// WriteXLSX writes snapshots and narratives to a workbook at path with one
// sheet each. Both sheets are always present; empty history yields a header
// row only.
func WriteXLSX(path string, snapshots []model.SnapshotEntry, narratives []model.NarrativeEntry) error {
	f := xlsx.NewFile()

	micro, err := f.AddSheet(SheetMicrostructure)
	if err != nil {
		return eris.Wrap(err, "export: add microstructure sheet")
	}
	addHeader(micro, microstructureHeader)
	for _, s := range snapshots {
		row := micro.AddRow()
		row.AddCell().SetInt64(s.ID)
		row.AddCell().SetString(s.Symbol)
		row.AddCell().SetInt64(s.Timestamp)
		row.AddCell().SetString(formatMillis(s.Timestamp))
		row.AddCell().SetFloat(s.Bid)
		row.AddCell().SetFloat(s.Ask)
		row.AddCell().SetFloat(s.Spread)
		row.AddCell().SetFloat(s.LiquidityScore)
	}

	narr, err := f.AddSheet(SheetNarrative)
	if err != nil {
		return eris.Wrap(err, "export: add narrative sheet")
	}
	addHeader(narr, narrativeHeader)
	for _, n := range narratives {
		row := narr.AddRow()
		row.AddCell().SetInt64(n.ID)
		row.AddCell().SetString(n.Symbol)
		row.AddCell().SetInt64(n.Timestamp)
		row.AddCell().SetString(formatMillis(n.Timestamp))
		row.AddCell().SetFloat(n.SentimentIndex)
		row.AddCell().SetString(n.Archetype)
		row.AddCell().SetString(strings.Join(n.Entities.Companies, "; "))
		row.AddCell().SetString(strings.Join(n.Entities.Persons, "; "))
		row.AddCell().SetString(strings.Join(n.Entities.Products, "; "))
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// ReadSheet returns every row of the named sheet as the raw stored cell
// text, so numbers keep full precision.
func ReadSheet(path, name string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open file")
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("export: sheet %q not found", name)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.Value
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func addHeader(sheet *xlsx.Sheet, cols []string) {
	row := sheet.AddRow()
	for _, c := range cols {
		row.AddCell().SetString(c)
	}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
