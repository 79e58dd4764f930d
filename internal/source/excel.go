// Package source loads product identifiers from operator-maintained
// spreadsheets.
package source

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExcelConfig locates the workbook and the identifier column within it.
type ExcelConfig struct {
	// Path is the workbook file path.
	Path string
	// IDColumn is the header name of the identifier column.
	IDColumn string
	// IDPrefix is stripped from matching identifiers; rows whose identifier
	// does not carry the prefix are skipped.
	IDPrefix string
}

// LoadExcelIDs reads the first sheet of the workbook, finds the identifier
// column by header name, and returns the prefix-stripped identifiers in row
// order with duplicates removed. A missing file or column is an error; the
// caller decides whether that aborts the run.
func LoadExcelIDs(cfg ExcelConfig) ([]string, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("source.excel_path is required")
	}
	if strings.TrimSpace(cfg.IDColumn) == "" {
		return nil, fmt.Errorf("source.id_column is required")
	}

	book, err := excelize.OpenFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", cfg.Path, err)
	}
	defer book.Close()

	sheet := book.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook %s has no sheets", cfg.Path)
	}
	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheet)
	}

	colIdx := -1
	for i, header := range rows[0] {
		if strings.TrimSpace(header) == cfg.IDColumn {
			colIdx = i
			break
		}
	}
	if colIdx < 0 {
		return nil, fmt.Errorf("column %q not found in sheet %s", cfg.IDColumn, sheet)
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, row := range rows[1:] {
		if colIdx >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[colIdx])
		if raw == "" {
			continue
		}
		if cfg.IDPrefix != "" {
			if !strings.HasPrefix(raw, cfg.IDPrefix) {
				continue
			}
			raw = strings.TrimPrefix(raw, cfg.IDPrefix)
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		ids = append(ids, raw)
	}
	return ids, nil
}
