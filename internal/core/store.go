package core

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by StateStore.Get when the key is absent.
var ErrNotFound = errors.New("state: key not found")

// StateStore is a durable key-value store partitioned into buckets.
// Implementations must make Update an atomic read-modify-write so two
// processes cannot both observe and claim the same job.
type StateStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, value []byte) error
	Delete(ctx context.Context, bucket, key string) error

	// Scan visits every entry of bucket in ascending key order.
	Scan(ctx context.Context, bucket string, fn func(key string, value []byte) error) error

	// Update calls fn with the current value (nil if absent) and stores the
	// returned value. If fn returns an error nothing is written.
	Update(ctx context.Context, bucket, key string, fn func(current []byte) ([]byte, error)) error
}

// Staging holds normalized rows between the stage and process steps, keyed
// by upload ID. Stage replaces any rows already held for the upload ID.
type Staging interface {
	Stage(ctx context.Context, uploadID uuid.UUID, rows []NormalizedRow) error
	Load(ctx context.Context, uploadID uuid.UUID) ([]NormalizedRow, error)
	Clear(ctx context.Context, uploadID uuid.UUID) error
}

// LedgerReader answers receipt membership queries against the ledger.
type LedgerReader interface {
	// ExistingReceipts returns the subset of receipts already in the ledger.
	ExistingReceipts(ctx context.Context, receipts []string) ([]string, error)
}

// Ledger is the permanent transaction table.
type Ledger interface {
	LedgerReader

	// WithinTx runs fn in a single transaction. The transaction commits only
	// if fn returns nil.
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the set of writes performed inside one commit transaction.
type LedgerTx interface {
	// InsertBatch inserts rows with one multi-row statement. A receipt that
	// already exists fails with a DuplicateReceipts ImportError.
	InsertBatch(ctx context.Context, rows []LedgerRow) error
	CountStaged(ctx context.Context, uploadID uuid.UUID) (int, error)
	SumAmounts(ctx context.Context, receipts []string) (decimal.Decimal, error)
	ClearStaged(ctx context.Context, uploadID uuid.UUID) error
}

// Catalog maps stylist and service names to IDs. Returned maps are keyed by
// the lower-cased name; names with no match are absent.
type Catalog interface {
	LookupStylists(ctx context.Context, names []string) (map[string]int64, error)
	LookupServices(ctx context.Context, names []string) (map[string]int64, error)
}

// Decoder reads a spreadsheet file into rows.
type Decoder interface {
	Decode(ctx context.Context, path string) ([]RawRow, error)
}
