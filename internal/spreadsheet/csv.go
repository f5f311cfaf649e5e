package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"os"
)

// readCSV reads a CSV export. Rows may have differing field counts and
// stray quotes are tolerated, as spreadsheet exports often contain both.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(NewSanitizingReader(f))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}
