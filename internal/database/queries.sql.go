package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const existingReceipts = `-- name: ExistingReceipts :many
SELECT receipt_no FROM service_sheet
WHERE receipt_no = ANY($1::text[])
ORDER BY receipt_no
`

func (q *Queries) ExistingReceipts(ctx context.Context, receipts []string) ([]string, error) {
	rows, err := q.db.Query(ctx, existingReceipts, receipts)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

const lookupStylists = `-- name: LookupStylists :many
SELECT LOWER(name) AS name, id FROM stylists
WHERE LOWER(name) = ANY($1::text[])
`

func (q *Queries) LookupStylists(ctx context.Context, lowerNames []string) ([]NameID, error) {
	rows, err := q.db.Query(ctx, lookupStylists, lowerNames)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[NameID])
}

const lookupServices = `-- name: LookupServices :many
SELECT LOWER(item) AS name, id FROM services
WHERE LOWER(item) = ANY($1::text[])
`

func (q *Queries) LookupServices(ctx context.Context, lowerNames []string) ([]NameID, error) {
	rows, err := q.db.Query(ctx, lookupServices, lowerNames)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[NameID])
}

const insertStylist = `-- name: InsertStylist :one
INSERT INTO stylists (name) VALUES ($1)
ON CONFLICT (LOWER(name)) DO UPDATE SET name = stylists.name
RETURNING id
`

func (q *Queries) InsertStylist(ctx context.Context, name string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertStylist, name).Scan(&id)
	return id, err
}

const insertService = `-- name: InsertService :one
INSERT INTO services (item) VALUES ($1)
ON CONFLICT (LOWER(item)) DO UPDATE SET item = services.item
RETURNING id
`

func (q *Queries) InsertService(ctx context.Context, item string) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, insertService, item).Scan(&id)
	return id, err
}

const listStagedRows = `-- name: ListStagedRows :many
SELECT upload_id, row_no, transaction_date, receipt_no, stylist_name, service_name, amount, net_amount
FROM staged_rows
WHERE upload_id = $1
ORDER BY row_no
`

func (q *Queries) ListStagedRows(ctx context.Context, uploadID pgtype.UUID) ([]StagedRow, error) {
	rows, err := q.db.Query(ctx, listStagedRows, uploadID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[StagedRow])
}

const countStagedRows = `-- name: CountStagedRows :one
SELECT COUNT(*) FROM staged_rows WHERE upload_id = $1
`

func (q *Queries) CountStagedRows(ctx context.Context, uploadID pgtype.UUID) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countStagedRows, uploadID).Scan(&count)
	return count, err
}

const deleteStagedRows = `-- name: DeleteStagedRows :execrows
DELETE FROM staged_rows WHERE upload_id = $1
`

func (q *Queries) DeleteStagedRows(ctx context.Context, uploadID pgtype.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, deleteStagedRows, uploadID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listStagedUploads = `-- name: ListStagedUploads :many
SELECT DISTINCT upload_id FROM staged_rows ORDER BY upload_id
`

func (q *Queries) ListStagedUploads(ctx context.Context) ([]pgtype.UUID, error) {
	rows, err := q.db.Query(ctx, listStagedUploads)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[pgtype.UUID])
}

const sumLedgerAmounts = `-- name: SumLedgerAmounts :one
SELECT COALESCE(SUM(amount), 0)::numeric FROM service_sheet
WHERE receipt_no = ANY($1::text[])
`

func (q *Queries) SumLedgerAmounts(ctx context.Context, receipts []string) (pgtype.Numeric, error) {
	var total pgtype.Numeric
	err := q.db.QueryRow(ctx, sumLedgerAmounts, receipts).Scan(&total)
	return total, err
}

// iteratorForCopyStagedRows implements pgx.CopyFromSource.
type iteratorForCopyStagedRows struct {
	rows                 []StagedRow
	skippedFirstNextCall bool
}

func (r *iteratorForCopyStagedRows) Next() bool {
	if len(r.rows) == 0 {
		return false
	}
	if !r.skippedFirstNextCall {
		r.skippedFirstNextCall = true
		return true
	}
	r.rows = r.rows[1:]
	return len(r.rows) > 0
}

func (r iteratorForCopyStagedRows) Values() ([]interface{}, error) {
	return []interface{}{
		r.rows[0].UploadID,
		r.rows[0].RowNo,
		r.rows[0].TransactionDate,
		r.rows[0].ReceiptNo,
		r.rows[0].StylistName,
		r.rows[0].ServiceName,
		r.rows[0].Amount,
		r.rows[0].NetAmount,
	}, nil
}

func (r iteratorForCopyStagedRows) Err() error {
	return nil
}

// CopyStagedRows bulk-loads staged rows with the COPY protocol.
func (q *Queries) CopyStagedRows(ctx context.Context, rows []StagedRow) (int64, error) {
	return q.db.CopyFrom(ctx, []string{"staged_rows"}, []string{
		"upload_id", "row_no", "transaction_date", "receipt_no",
		"stylist_name", "service_name", "amount", "net_amount",
	}, &iteratorForCopyStagedRows{rows: rows})
}
