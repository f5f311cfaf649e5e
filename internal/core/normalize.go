package core

import (
	"github.com/shopspring/decimal"
)

// DefaultNetRatio is the share of the gross amount credited as net.
var DefaultNetRatio = decimal.RequireFromString("0.86")

// ColumnMap names the spreadsheet column holding each field.
type ColumnMap struct {
	Date    string
	Receipt string
	Service string
	Stylist string
	Amount  string
}

// DefaultColumnMap is the layout of the point-of-sale sales export:
// Date (A), Receipt (B), Item (E), Team member (H), Total sales (Q).
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		Date:    "A",
		Receipt: "B",
		Service: "E",
		Stylist: "H",
		Amount:  "Q",
	}
}

// Field names reported by MissingField errors.
const (
	FieldReceipt = "receipt_no"
	FieldStylist = "stylist_name"
	FieldService = "service_name"
	FieldAmount  = "amount"
)

// Normalizer turns RawRows into NormalizedRows. It holds no mutable state
// and is safe for concurrent use.
type Normalizer struct {
	cols     ColumnMap
	netRatio decimal.Decimal
}

// NewNormalizer creates a Normalizer. A zero netRatio falls back to DefaultNetRatio.
func NewNormalizer(cols ColumnMap, netRatio decimal.Decimal) *Normalizer {
	if netRatio.IsZero() {
		netRatio = DefaultNetRatio
	}
	return &Normalizer{cols: cols, netRatio: netRatio}
}

// Normalize parses one row. index is the 1-based row number in the sheet.
// The header row and blank rows return ok=false with a nil error.
func (n *Normalizer) Normalize(raw RawRow, index int) (row NormalizedRow, ok bool, err error) {
	if index == 1 || raw.IsEmpty() {
		return NormalizedRow{}, false, nil
	}

	dateText := raw.Get(n.cols.Date)
	date, parsed := ParseTransactionDate(dateText)
	if !parsed {
		return NormalizedRow{}, false, errInvalidDate(index, CleanCell(dateText))
	}

	row = NormalizedRow{
		TransactionDate: date,
		ReceiptNo:       CleanCell(raw.Get(n.cols.Receipt)),
		StylistName:     CleanCell(raw.Get(n.cols.Stylist)),
		ServiceName:     CleanCell(raw.Get(n.cols.Service)),
		Amount:          ParseAmount(raw.Get(n.cols.Amount)),
	}

	switch {
	case row.ReceiptNo == "":
		return NormalizedRow{}, false, errMissingField(index, FieldReceipt)
	case row.StylistName == "":
		return NormalizedRow{}, false, errMissingField(index, FieldStylist)
	case row.ServiceName == "":
		return NormalizedRow{}, false, errMissingField(index, FieldService)
	case row.Amount.IsZero():
		return NormalizedRow{}, false, errMissingField(index, FieldAmount)
	case row.Amount.IsNegative():
		return NormalizedRow{}, false, errInvalidAmount(index, CleanCell(raw.Get(n.cols.Amount)))
	}

	row.NetAmount = row.Amount.Mul(n.netRatio)
	return row, true, nil
}

// NormalizeAll normalizes every row, stopping at the first error.
// rows[i] is treated as sheet row i+1.
func (n *Normalizer) NormalizeAll(rows []RawRow) ([]NormalizedRow, error) {
	out := make([]NormalizedRow, 0, len(rows))
	for i, raw := range rows {
		row, ok, err := n.Normalize(raw, i+1)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}
