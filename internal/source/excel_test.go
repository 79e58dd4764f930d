package source

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, book.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), "items.xlsx")
	require.NoError(t, book.SaveAs(path))
	require.NoError(t, book.Close())
	return path
}

func TestLoadExcelIDsFiltersAndStripsPrefix(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, [][]any{
		{"item_name", "seller_unique_item_id", "price"},
		{"serum", "oliveyoung_A000000210637", 12000},
		{"toner", "qoo10_B0001", 9000},
		{"mask", "oliveyoung_A000000170314", 4000},
		{"", "", nil},
		{"serum again", "oliveyoung_A000000210637", 12000},
		{"cream", " oliveyoung_A000000155912 ", 15000},
	})

	ids, err := LoadExcelIDs(ExcelConfig{
		Path:     path,
		IDColumn: "seller_unique_item_id",
		IDPrefix: "oliveyoung_",
	})
	require.NoError(t, err)
	require.Equal(t, []string{
		"A000000210637",
		"A000000170314",
		"A000000155912",
	}, ids)
}

func TestLoadExcelIDsMissingColumn(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, [][]any{
		{"item_name", "price"},
		{"serum", 12000},
	})

	_, err := LoadExcelIDs(ExcelConfig{
		Path:     path,
		IDColumn: "seller_unique_item_id",
	})
	require.ErrorContains(t, err, "seller_unique_item_id")
}

func TestLoadExcelIDsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadExcelIDs(ExcelConfig{
		Path:     filepath.Join(t.TempDir(), "absent.xlsx"),
		IDColumn: "seller_unique_item_id",
	})
	require.Error(t, err)
}

// TestLoadExcelIDsNoPrefixKeepsAll checks the prefix filter is optional.
func TestLoadExcelIDsNoPrefixKeepsAll(t *testing.T) {
	t.Parallel()

	path := writeWorkbook(t, [][]any{
		{"seller_unique_item_id"},
		{"A0001"},
		{"B0002"},
	})

	ids, err := LoadExcelIDs(ExcelConfig{Path: path, IDColumn: "seller_unique_item_id"})
	require.NoError(t, err)
	require.Equal(t, []string{"A0001", "B0002"}, ids)
}
