package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// SheetName is the worksheet name used by WriteXLSX.
const SheetName = "Change Log"

// Export writes the change log to w in the given format.
func (l *ChangeLog) Export(w io.Writer, format Format) error {
	switch format {
	case FormatTable:
		return l.RenderTable(w)
	case FormatCSV:
		return l.WriteCSV(w)
	case FormatJSON:
		return l.WriteJSON(w)
	case FormatYAML:
		return l.WriteYAML(w)
	case FormatXLSX:
		return l.WriteXLSX(w)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// RenderTable writes the change log as a text table.
func (l *ChangeLog) RenderTable(w io.Writer) error {
	table := tablewriter.NewTable(w)

	headers := make([]any, len(Headers))
	for i, h := range Headers {
		headers[i] = h
	}
	table.Header(headers...)

	for _, row := range l.Rows {
		cells := row.Cells()
		rowData := make([]any, len(cells))
		for i, cell := range cells {
			rowData[i] = cell
		}
		if err := table.Append(rowData...); err != nil {
			return fmt.Errorf("failed to append table row: %w", err)
		}
	}

	return table.Render()
}

// WriteCSV writes the change log as CSV with a header row.
func (l *ChangeLog) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, row := range l.Rows {
		if err := writer.Write(row.Cells()); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteJSON writes the change log as indented JSON.
func (l *ChangeLog) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(l); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// WriteYAML writes the change log as YAML.
func (l *ChangeLog) WriteYAML(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(l); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

// WriteXLSX writes the change log as a single-sheet workbook with a bold
// header row.
func (l *ChangeLog) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, style); err != nil {
		return fmt.Errorf("failed to style header row: %w", err)
	}

	for i, row := range l.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}

		cells := row.Cells()
		values := make([]interface{}, len(cells))
		for j, c := range cells {
			values[j] = c
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "H", 14); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
