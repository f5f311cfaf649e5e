package database

import (
	"context"
	"fmt"
	"strings"
)

// serviceSheetColumns are the columns written by InsertServiceSheetBatch.
var serviceSheetColumns = []string{"entry_date", "stylist", "service", "amount", "net", "receipt_no"}

// InsertServiceSheetBatch inserts rows with a single multi-row INSERT.
// The receipt_no unique constraint fails the whole statement on any duplicate.
func (q *Queries) InsertServiceSheetBatch(ctx context.Context, rows []ServiceSheet) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO service_sheet (")
	sb.WriteString(strings.Join(serviceSheetColumns, ", "))
	sb.WriteString(") VALUES ")

	n := len(serviceSheetColumns)
	args := make([]any, 0, len(rows)*n)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * n
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args, r.EntryDate, r.Stylist, r.Service, r.Amount, r.Net, r.ReceiptNo)
	}

	result, err := q.db.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
