// Package export writes the change log to spreadsheet formats.
package export

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/studio-suggest/internal/model"
)

// Format identifies an export encoding.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// SheetName is the worksheet the XLSX export writes to.
const SheetName = "changes"

// Header is the column order of every export.
var Header = []string{
	"id", "suggestion_id", "action", "table_name", "record_id",
	"field_name", "old_value", "new_value", "applied_at", "reversed_at",
}

// FormatFor picks a format from the output path extension.
func FormatFor(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", eris.Errorf("export: unsupported extension %q", ext)
	}
}

// Row flattens one change record in Header order. Values stay in their
// recorded JSON form so nulls and strings remain distinguishable.
func Row(rec model.ChangeRecord) []string {
	reversed := ""
	if rec.ReversedAt != nil {
		reversed = rec.ReversedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		rec.ID,
		rec.SuggestionID,
		string(rec.Action),
		rec.TableName,
		rec.RecordID,
		rec.FieldName,
		rawValue(rec.OldValue),
		rawValue(rec.NewValue),
		rec.AppliedAt.UTC().Format(time.RFC3339),
		reversed,
	}
}

func rawValue(raw []byte) string {
	if len(raw) == 0 {
		return "null"
	}
	return string(raw)
}

// Write encodes recs to w in the given format.
func Write(w io.Writer, format Format, recs []model.ChangeRecord) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, recs)
	case FormatCSV:
		return WriteCSV(w, recs)
	default:
		return eris.Errorf("export: unknown format %q", format)
	}
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, recs []model.ChangeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "export: csv header")
	}
	for _, rec := range recs {
		if err := cw.Write(Row(rec)); err != nil {
			return eris.Wrapf(err, "export: csv row %s", rec.ID)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: csv flush")
	}
	return nil
}

// WriteXLSX writes a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, recs []model.ChangeRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	style := xlsx.NewStyle()
	style.Font.Bold = true
	style.ApplyFont = true
	for _, col := range Header {
		cell := header.AddCell()
		cell.SetString(col)
		cell.SetStyle(style)
	}

	for _, rec := range recs {
		row := sheet.AddRow()
		for _, v := range Row(rec) {
			row.AddCell().SetString(v)
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx: write")
	}
	return nil
}

// ReadXLSX reads a workbook written by WriteXLSX back into string rows,
// header included.
func ReadXLSX(data []byte) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open")
	}
	sheet, ok := f.Sheet[SheetName]
	if !ok {
		return nil, eris.Errorf("xlsx: sheet %q not found", SheetName)
	}
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
