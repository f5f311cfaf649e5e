// Package spreadsheet decodes sales exports into core.RawRows.
//
// Both .xlsx workbooks and .csv exports are supported. Cells are keyed by
// their spreadsheet column letter (A, B, ... AA) so the column layout can be
// configured without depending on header text.
package spreadsheet

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/xuri/excelize/v2"
)

// ctxCheckInterval is how many rows are converted between cancellation checks.
const ctxCheckInterval = 1000

// Decoder reads spreadsheet files. The zero value reads the first sheet of
// a workbook.
type Decoder struct {
	// Sheet selects a workbook sheet by name. Empty means the first sheet.
	Sheet string
}

// NewDecoder creates a Decoder that reads the first sheet.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode reads every row of the file at path, dispatching on its extension.
func (d *Decoder) Decode(ctx context.Context, path string) ([]core.RawRow, error) {
	var (
		cells [][]string
		err   error
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		cells, err = d.readWorkbook(path)
	case ".csv":
		cells, err = readCSV(path)
	default:
		return nil, core.ErrDecode(fmt.Errorf("unsupported file type %q", ext))
	}
	if err != nil {
		return nil, core.ErrDecode(err)
	}

	return toRawRows(ctx, cells)
}

// toRawRows labels each cell with its column letter.
func toRawRows(ctx context.Context, cells [][]string) ([]core.RawRow, error) {
	width := 0
	for _, row := range cells {
		width = max(width, len(row))
	}

	labels := make([]string, width)
	for i := range labels {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, core.ErrDecode(err)
		}
		labels[i] = name
	}

	rows := make([]core.RawRow, len(cells))
	for i, values := range cells {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rows[i] = core.RawRow{Labels: labels[:len(values)], Values: values}
	}
	return rows, nil
}
