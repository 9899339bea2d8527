// internal/export/xlsx.go
package export

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"statdash/internal/apperr"
	"statdash/internal/stats"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	defaultSheet = "Sheet1"
	columnWidth  = 24
)

// WriteXLSX записывает таблицу на один лист: заголовок в первой строке,
// данные начиная со второй.
func WriteXLSX(w io.Writer, table stats.ExportTable) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("Ошибка закрытия книги XLSX", "error", err)
		}
	}()

	sheet := table.SheetName
	if sheet == "" {
		sheet = defaultSheet
	}
	if sheet != defaultSheet {
		if err := f.SetSheetName(defaultSheet, sheet); err != nil {
			return formatErr("set_sheet_name", err)
		}
	}

	header := make([]any, len(table.Header))
	for i, h := range table.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return formatErr("write_header", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return formatErr("header_style", err)
	}

	if len(table.Header) > 0 {
		lastCol, err := excelize.ColumnNumberToName(len(table.Header))
		if err != nil {
			return formatErr("column_name", err)
		}
		if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
			return formatErr("apply_header_style", err)
		}
		if err := f.SetColWidth(sheet, "A", lastCol, columnWidth); err != nil {
			return formatErr("column_width", err)
		}
	}

	for i, row := range table.Rows {
		if len(row) != len(table.Header) {
			return formatErr("write_row", fmt.Errorf("строка %d: %d значений при %d колонках", i, len(row), len(table.Header)))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return formatErr("cell_name", err)
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return formatErr("write_row", err)
		}
	}

	if err := applyColumnFormats(f, sheet, table); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return formatErr("write_workbook", err)
	}
	return nil
}

func applyColumnFormats(f *excelize.File, sheet string, table stats.ExportTable) error {
	if len(table.Rows) == 0 {
		return nil
	}
	for col, numFmt := range table.ColumnFormats {
		if numFmt == "" {
			continue
		}
		format := numFmt
		style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &format})
		if err != nil {
			return formatErr("number_style", err)
		}
		first, err := excelize.CoordinatesToCellName(col+1, 2)
		if err != nil {
			return formatErr("cell_name", err)
		}
		last, err := excelize.CoordinatesToCellName(col+1, len(table.Rows)+1)
		if err != nil {
			return formatErr("cell_name", err)
		}
		if err := f.SetCellStyle(sheet, first, last, style); err != nil {
			return formatErr("apply_number_style", err)
		}
	}
	return nil
}

func formatErr(op string, err error) error {
	return &apperr.FormattingError{Op: "xlsx_" + op, Err: err}
}
