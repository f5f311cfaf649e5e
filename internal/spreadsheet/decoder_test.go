package spreadsheet

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "sales.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

func TestDecoder_Workbook(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"Date", "Receipt", "C", "D", "Item", "F", "G", "Team member"},
		{"01/06/24 10:00:00", "R1", "", "", "Cut", "", "", "Anna"},
		{},
		{"01/06/24 11:00:00", "R2", "", "", "Colour", "", "", "Ben"},
	})

	rows, err := NewDecoder().Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(rows) < 2 {
		t.Fatalf("len(rows) = %d, want at least 2", len(rows))
	}
	if got := rows[1].Get("B"); got != "R1" {
		t.Errorf("rows[1][B] = %q, want R1", got)
	}
	if got := rows[1].Get("H"); got != "Anna" {
		t.Errorf("rows[1][H] = %q, want Anna", got)
	}
	if got := rows[1].Get("Q"); got != "" {
		t.Errorf("rows[1][Q] = %q, want empty for a missing column", got)
	}
}

func TestDecoder_WideWorkbookLabels(t *testing.T) {
	row := make([]any, 28)
	for i := range row {
		row[i] = ""
	}
	row[16] = "45.50"
	row[27] = "last"
	path := writeWorkbook(t, [][]any{row})

	rows, err := NewDecoder().Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := rows[0].Get("Q"); got != "45.50" {
		t.Errorf("Q = %q, want 45.50", got)
	}
	if got := rows[0].Get("AB"); got != "last" {
		t.Errorf("AB = %q, want last", got)
	}
}

func TestDecoder_CSV(t *testing.T) {
	content := "\xEF\xBB\xBFDate,Receipt,C,D,Item\n" +
		"01/06/24 10:00:00,=\"R1\",,,\"Cut, Wash\"\n" +
		"01/06/24 11:00:00,R2\n"
	path := filepath.Join(t.TempDir(), "sales.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rows, err := NewDecoder().Decode(context.Background(), path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	if got := rows[0].Get("A"); got != "Date" {
		t.Errorf("header A = %q, want Date (BOM stripped)", got)
	}
	if got := rows[1].Get("E"); got != "Cut, Wash" {
		t.Errorf("rows[1][E] = %q, want %q", got, "Cut, Wash")
	}
	if got := core.CleanCell(rows[1].Get("B")); got != "R1" {
		t.Errorf("rows[1][B] cleaned = %q, want R1", got)
	}
	if got := rows[2].Get("E"); got != "" {
		t.Errorf("short row E = %q, want empty", got)
	}
}

func TestDecoder_Errors(t *testing.T) {
	dir := t.TempDir()
	bogus := filepath.Join(dir, "broken.xlsx")
	os.WriteFile(bogus, []byte("not a zip"), 0o644)

	tests := []struct {
		name string
		path string
	}{
		{name: "unsupported extension", path: filepath.Join(dir, "sales.pdf")},
		{name: "missing file", path: filepath.Join(dir, "missing.csv")},
		{name: "corrupt workbook", path: bogus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder().Decode(context.Background(), tt.path)
			if core.KindOf(err) != core.KindDecode {
				t.Errorf("error = %v, want Decode kind", err)
			}
		})
	}
}
