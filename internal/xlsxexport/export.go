// Package xlsxexport writes the visible page of a list view to an XLSX workbook.
package xlsxexport

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"graphql-admin/internal/listview"
)

const (
	defaultSheet  = "Sheet1"
	maxSheetRunes = 31
)

// ContentType is the media type of the written workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Write renders the snapshot's columns and rows as a single sheet named after the
// view title. Headers use the resolved labels. Typed cells keep their type unless a
// renderer changed how they display.
func Write(w io.Writer, snap listview.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := SheetName(snap.Title)
	if sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return fmt.Errorf("failed to name sheet: %w", err)
		}
	}

	header := make([]any, 0, len(snap.Columns))
	for _, column := range snap.Columns {
		header = append(header, column.Label)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if len(snap.Columns) > 0 {
		style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("failed to create header style: %w", err)
		}
		last, err := excelize.CoordinatesToCellName(len(snap.Columns), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
			return fmt.Errorf("failed to style header: %w", err)
		}
	}

	for i, row := range snap.Rows {
		values := make([]any, 0, len(row))
		for _, cell := range row {
			values = append(values, cellValue(cell))
		}
		start, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, start, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func cellValue(cell listview.Cell) any {
	v := cell.Value
	if cell.Display != v.Text {
		return cell.Display
	}
	switch {
	case v.Kind == listview.KindNull:
		return nil
	case v.Kind == listview.KindNumber && v.Number != nil:
		return *v.Number
	case v.Kind == listview.KindBoolean && v.Bool != nil:
		return *v.Bool
	case v.Kind == listview.KindDate && v.Time != nil:
		return *v.Time
	default:
		return v.Text
	}
}

// SheetName turns a title into a valid worksheet name.
func SheetName(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return ' '
		}
		return r
	}, title)
	cleaned = strings.Trim(strings.TrimSpace(cleaned), "'")
	if cleaned == "" {
		return defaultSheet
	}
	runes := []rune(cleaned)
	if len(runes) > maxSheetRunes {
		cleaned = strings.TrimSpace(string(runes[:maxSheetRunes]))
	}
	return cleaned
}

// FileName returns the attachment name for a view export.
func FileName(listField string) string {
	name := strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, listField)
	if name == "" {
		name = "export"
	}
	return name + ".xlsx"
}
