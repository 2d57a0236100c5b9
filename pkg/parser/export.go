package parser

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	NET_SHEET_NAME = "Сетка"
	netFirstRow    = 3
)

// ExportBattleNet writes the grid into a workbook keeping its row/column layout, with
// the category name in the first row.
func ExportBattleNet(w io.Writer, name string, grid [][]string) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName(f.GetSheetName(0), NET_SHEET_NAME); err != nil {
		return fmt.Errorf("ExportBattleNet failed: %w", err)
	}

	if err := f.SetCellValue(NET_SHEET_NAME, "A1", name); err != nil {
		return fmt.Errorf("ExportBattleNet failed: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}})
	if err != nil {
		return fmt.Errorf("ExportBattleNet failed: %w", err)
	}
	if err := f.SetCellStyle(NET_SHEET_NAME, "A1", "A1", bold); err != nil {
		return fmt.Errorf("ExportBattleNet failed: %w", err)
	}

	cols := 0
	for r, row := range grid {
		if len(row) > cols {
			cols = len(row)
		}
		for c, value := range row {
			if value == "" {
				continue
			}
			addr, err := excelize.CoordinatesToCellName(c+1, r+netFirstRow)
			if err != nil {
				return fmt.Errorf("ExportBattleNet failed: %w", err)
			}
			if err := f.SetCellValue(NET_SHEET_NAME, addr, value); err != nil {
				return fmt.Errorf("ExportBattleNet failed: %w", err)
			}
		}
	}

	if cols > 0 {
		last, err := excelize.ColumnNumberToName(cols)
		if err != nil {
			return fmt.Errorf("ExportBattleNet failed: %w", err)
		}
		if err := f.SetColWidth(NET_SHEET_NAME, "A", last, 45); err != nil {
			return fmt.Errorf("ExportBattleNet failed: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("ExportBattleNet failed: %w", err)
	}
	return nil
}
