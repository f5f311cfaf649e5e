package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Stylist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Service struct {
	ID   int64  `json:"id"`
	Item string `json:"item"`
}

type ServiceSheet struct {
	EntryID   int64            `json:"entry_id"`
	EntryDate pgtype.Timestamp `json:"entry_date"`
	Stylist   int64            `json:"stylist"`
	Service   int64            `json:"service"`
	Amount    pgtype.Numeric   `json:"amount"`
	Net       pgtype.Numeric   `json:"net"`
	ReceiptNo string           `json:"receipt_no"`
}

type StagedRow struct {
	UploadID        pgtype.UUID      `json:"upload_id"`
	RowNo           int32            `json:"row_no"`
	TransactionDate pgtype.Timestamp `json:"transaction_date"`
	ReceiptNo       string           `json:"receipt_no"`
	StylistName     string           `json:"stylist_name"`
	ServiceName     string           `json:"service_name"`
	Amount          pgtype.Numeric   `json:"amount"`
	NetAmount       pgtype.Numeric   `json:"net_amount"`
}

// NameID is a catalog lookup result keyed by the lower-cased name.
type NameID struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
}
