package dataset

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const figureSheet = "Figures"

// WriteFigureIndex writes an XLSX workbook with one row per figure entry of
// docs, in document order.
func WriteFigureIndex(w io.Writer, docs []*Document) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(figureSheet); err != nil {
		return 0, fmt.Errorf("create sheet: %w", err)
	}
	index, _ := f.GetSheetIndex(figureSheet)
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"Document", "Position", "Image ID", "File", "Caption", "Label"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(figureSheet, cell, h)
	}

	row := 2
	for _, doc := range docs {
		for pos, e := range doc.Entries {
			if !e.IsFigure() {
				continue
			}
			values := []any{doc.DocID, pos, e.ImageID, e.ImageFilename, e.Caption, e.Label}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				_ = f.SetCellValue(figureSheet, cell, v)
			}
			row++
		}
	}

	_ = f.SetColWidth(figureSheet, "A", "A", 18)
	_ = f.SetColWidth(figureSheet, "C", "D", 32)
	_ = f.SetColWidth(figureSheet, "E", "E", 60)
	_ = f.SetColWidth(figureSheet, "F", "F", 20)

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("xlsx write: %w", err)
	}
	return row - 2, nil
}
