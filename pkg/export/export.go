package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/arnavshah/weekly-scheduler-go/pkg/scheduler"
)

const sheetName = "Schedule"

// WriteCSV writes t as comma separated values, header first.
func WriteCSV(w io.Writer, t scheduler.Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := writer.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// WriteXLSX writes t to a single-sheet workbook. Title goes in the first row,
// the table header in the second, and 0/1 cells are stored as numbers.
func WriteXLSX(w io.Writer, title string, t scheduler.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	titleCell, _ := excelize.CoordinatesToCellName(1, 1)
	if err := f.SetCellValue(sheetName, titleCell, title); err != nil {
		return fmt.Errorf("write title: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	assignedStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#C6EFCE"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("create cell style: %w", err)
	}

	for i, h := range t.Header {
		c, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellValue(sheetName, c, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if len(t.Header) > 0 {
		first, _ := excelize.CoordinatesToCellName(1, 2)
		last, _ := excelize.CoordinatesToCellName(len(t.Header), 2)
		if err := f.SetCellStyle(sheetName, first, last, headerStyle); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
	}

	for r, row := range t.Rows {
		for col, v := range row {
			c, _ := excelize.CoordinatesToCellName(col+1, r+3)
			// The first column is the employee id; the rest are flags.
			if n, err := strconv.Atoi(v); err == nil && col > 0 {
				if err := f.SetCellValue(sheetName, c, n); err != nil {
					return fmt.Errorf("write cell %s: %w", c, err)
				}
				if n == 1 {
					_ = f.SetCellStyle(sheetName, c, c, assignedStyle)
				}
				continue
			}
			if err := f.SetCellValue(sheetName, c, v); err != nil {
				return fmt.Errorf("write cell %s: %w", c, err)
			}
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 18); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
