// =============================================================================
// XML Fee Reconciler - Change Log
// =============================================================================
//
// This module turns reconciliation results into the change log shown to the
// user and written next to the corrected document.
//
// COLUMNS:
//   | Column     | Source                       | Unchanged rows |
//   |------------|------------------------------|----------------|
//   | Date       | charge_date, as read         | set            |
//   | Status     | Unchanged / Adjusted         | set            |
//   | OrigUnits  | units text, as read          | set            |
//   | OrigRate   | rate text, as read           | set            |
//   | OrigAmount | total_amount text, as read   | set            |
//   | AdjUnits   | corrected units              | NotApplicable  |
//   | AdjRate    | corrected rate               | NotApplicable  |
//   | AdjAmount  | corrected total_amount       | NotApplicable  |
//
// EXPORT FORMATS:
//   table, csv, json, yaml, xlsx
//
// =============================================================================

package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ginjaninja78/xml-fee-reconciler/internal/reconciler"
)

// NotApplicable marks the corrected columns of unchanged rows.
const NotApplicable = ""

// Headers are the change log column names in display order.
var Headers = []string{"Date", "Status", "OrigUnits", "OrigRate", "OrigAmount", "AdjUnits", "AdjRate", "AdjAmount"}

// ErrUnknownFormat is returned for an unsupported export format.
var ErrUnknownFormat = errors.New("unknown export format")

// Format is a change log export format.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatXLSX  Format = "xlsx"
)

// ParseFormat returns the Format named by s.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatCSV, FormatJSON, FormatYAML, FormatXLSX:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Extension returns the file extension used when the log is written to disk.
func (f Format) Extension() string {
	switch f {
	case FormatTable:
		return ".txt"
	default:
		return "." + string(f)
	}
}

// =============================================================================
// ROWS
// =============================================================================

// Row is one line of the change log.
type Row struct {
	Date       string `json:"date" yaml:"date"`
	Status     string `json:"status" yaml:"status"`
	OrigUnits  string `json:"orig_units" yaml:"orig_units"`
	OrigRate   string `json:"orig_rate" yaml:"orig_rate"`
	OrigAmount string `json:"orig_amount" yaml:"orig_amount"`
	AdjUnits   string `json:"adj_units,omitempty" yaml:"adj_units,omitempty"`
	AdjRate    string `json:"adj_rate,omitempty" yaml:"adj_rate,omitempty"`
	AdjAmount  string `json:"adj_amount,omitempty" yaml:"adj_amount,omitempty"`
}

// Cells returns the row values in Headers order.
func (r Row) Cells() []string {
	return []string{r.Date, r.Status, r.OrigUnits, r.OrigRate, r.OrigAmount, r.AdjUnits, r.AdjRate, r.AdjAmount}
}

// ChangeLog is the ordered list of rows for one document.
type ChangeLog struct {
	Rows []Row `json:"rows" yaml:"rows"`
}

// FromResults builds a change log with one row per result, in input order.
func FromResults(results []reconciler.Result) *ChangeLog {
	log := &ChangeLog{Rows: make([]Row, 0, len(results))}

	for _, res := range results {
		row := Row{
			Date:       res.ChargeDate,
			Status:     statusLabel(res.Status),
			OrigUnits:  res.Original.Units,
			OrigRate:   res.Original.Rate,
			OrigAmount: res.Original.Amount,
			AdjUnits:   NotApplicable,
			AdjRate:    NotApplicable,
			AdjAmount:  NotApplicable,
		}

		if res.Status == reconciler.Adjusted {
			row.AdjUnits, row.AdjRate, row.AdjAmount = res.Corrected.Text()
		}

		log.Rows = append(log.Rows, row)
	}

	return log
}

// Len returns the number of rows.
func (l *ChangeLog) Len() int {
	return len(l.Rows)
}

// Adjusted returns the number of adjusted rows.
func (l *ChangeLog) Adjusted() int {
	n := 0
	for _, r := range l.Rows {
		if r.Status == statusLabel(reconciler.Adjusted) {
			n++
		}
	}
	return n
}

func statusLabel(s reconciler.Status) string {
	switch s {
	case reconciler.Adjusted:
		return "Adjusted"
	case reconciler.Unchanged:
		return "Unchanged"
	default:
		return string(s)
	}
}
