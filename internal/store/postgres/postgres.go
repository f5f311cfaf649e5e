// Package postgres implements the staging store, ledger and name catalog
// on PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/ledgerimport/internal/core"
	db "github.com/JonMunkholm/ledgerimport/internal/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store implements core.Staging, core.Ledger and core.Catalog.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Bootstrap creates the ledger tables if they do not exist.
func (s *Store) Bootstrap(ctx context.Context) error {
	return db.Bootstrap(ctx, s.pool)
}

// Stage replaces the staged rows for uploadID in one transaction.
func (s *Store) Stage(ctx context.Context, uploadID uuid.UUID, rows []core.NormalizedRow) error {
	staged := make([]db.StagedRow, len(rows))
	for i, r := range rows {
		staged[i] = db.StagedRow{
			UploadID:        toPgUUID(uploadID),
			RowNo:           int32(i + 1),
			TransactionDate: toPgTimestamp(r.TransactionDate),
			ReceiptNo:       r.ReceiptNo,
			StylistName:     r.StylistName,
			ServiceName:     r.ServiceName,
			Amount:          toPgNumeric(r.Amount),
			NetAmount:       toPgNumeric(r.NetAmount),
		}
	}

	return s.withTx(ctx, func(q *db.Queries) error {
		if _, err := q.DeleteStagedRows(ctx, toPgUUID(uploadID)); err != nil {
			return fmt.Errorf("clear previous rows: %w", err)
		}
		if _, err := q.CopyStagedRows(ctx, staged); err != nil {
			return fmt.Errorf("copy staged rows: %w", err)
		}
		return nil
	})
}

// Load returns the staged rows for uploadID in sheet order.
func (s *Store) Load(ctx context.Context, uploadID uuid.UUID) ([]core.NormalizedRow, error) {
	staged, err := db.New(s.pool).ListStagedRows(ctx, toPgUUID(uploadID))
	if err != nil {
		return nil, err
	}

	rows := make([]core.NormalizedRow, len(staged))
	for i, r := range staged {
		amount, err := fromPgNumeric(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("staged row %d amount: %w", r.RowNo, err)
		}
		net, err := fromPgNumeric(r.NetAmount)
		if err != nil {
			return nil, fmt.Errorf("staged row %d net: %w", r.RowNo, err)
		}
		rows[i] = core.NormalizedRow{
			TransactionDate: r.TransactionDate.Time,
			ReceiptNo:       r.ReceiptNo,
			StylistName:     r.StylistName,
			ServiceName:     r.ServiceName,
			Amount:          amount,
			NetAmount:       net,
		}
	}
	return rows, nil
}

// Clear deletes the staged rows for uploadID.
func (s *Store) Clear(ctx context.Context, uploadID uuid.UUID) error {
	_, err := db.New(s.pool).DeleteStagedRows(ctx, toPgUUID(uploadID))
	return err
}

// StagedUploads lists every upload ID that still has staged rows.
func (s *Store) StagedUploads(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := db.New(s.pool).ListStagedUploads(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, len(ids))
	for i, id := range ids {
		out[i] = uuid.UUID(id.Bytes)
	}
	return out, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) ExistingReceipts(ctx context.Context, receipts []string) ([]string, error) {
	if len(receipts) == 0 {
		return nil, nil
	}
	return db.New(s.pool).ExistingReceipts(ctx, receipts)
}

// WithinTx runs fn in one database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx core.LedgerTx) error) error {
	return s.withTx(ctx, func(q *db.Queries) error {
		return fn(&ledgerTx{q: q})
	})
}

func (s *Store) withTx(ctx context.Context, fn func(q *db.Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Warn("rollback failed", "error", err)
		}
	}()

	if err := fn(db.New(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type ledgerTx struct {
	q *db.Queries
}

func (t *ledgerTx) InsertBatch(ctx context.Context, rows []core.LedgerRow) error {
	batch := make([]db.ServiceSheet, len(rows))
	for i, r := range rows {
		batch[i] = db.ServiceSheet{
			EntryDate: toPgTimestamp(r.EntryDate),
			Stylist:   r.StylistID,
			Service:   r.ServiceID,
			Amount:    toPgNumeric(r.Amount),
			Net:       toPgNumeric(r.Net),
			ReceiptNo: r.ReceiptNo,
		}
	}

	if _, err := t.q.InsertServiceSheetBatch(ctx, batch); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.ErrDuplicateReceipts(duplicateKeys(pgErr.Detail))
		}
		return err
	}
	return nil
}

func (t *ledgerTx) CountStaged(ctx context.Context, uploadID uuid.UUID) (int, error) {
	n, err := t.q.CountStagedRows(ctx, toPgUUID(uploadID))
	return int(n), err
}

func (t *ledgerTx) SumAmounts(ctx context.Context, receipts []string) (decimal.Decimal, error) {
	total, err := t.q.SumLedgerAmounts(ctx, receipts)
	if err != nil {
		return decimal.Zero, err
	}
	return fromPgNumeric(total)
}

func (t *ledgerTx) ClearStaged(ctx context.Context, uploadID uuid.UUID) error {
	_, err := t.q.DeleteStagedRows(ctx, toPgUUID(uploadID))
	return err
}

func (s *Store) LookupStylists(ctx context.Context, names []string) (map[string]int64, error) {
	found, err := db.New(s.pool).LookupStylists(ctx, lowerAll(names))
	if err != nil {
		return nil, err
	}
	return toMap(found), nil
}

func (s *Store) LookupServices(ctx context.Context, names []string) (map[string]int64, error) {
	found, err := db.New(s.pool).LookupServices(ctx, lowerAll(names))
	if err != nil {
		return nil, err
	}
	return toMap(found), nil
}

// AddStylist registers a stylist, returning the existing ID if the name is
// already present in any case.
func (s *Store) AddStylist(ctx context.Context, name string) (int64, error) {
	return db.New(s.pool).InsertStylist(ctx, strings.TrimSpace(name))
}

// AddService registers a service item.
func (s *Store) AddService(ctx context.Context, item string) (int64, error) {
	return db.New(s.pool).InsertService(ctx, strings.TrimSpace(item))
}

func lowerAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = strings.ToLower(n)
	}
	return out
}

func toMap(rows []db.NameID) map[string]int64 {
	m := make(map[string]int64, len(rows))
	for _, r := range rows {
		m[r.Name] = r.ID
	}
	return m
}

// duplicateKeys extracts the key from a unique-violation detail such as
// "Key (receipt_no)=(R-1001) already exists.".
func duplicateKeys(detail string) []string {
	_, rest, ok := strings.Cut(detail, ")=(")
	if !ok {
		return nil
	}
	key, _, ok := strings.Cut(rest, ") already exists")
	if !ok {
		return nil
	}
	return []string{key}
}

var (
	_ core.Staging = (*Store)(nil)
	_ core.Ledger  = (*Store)(nil)
	_ core.Catalog = (*Store)(nil)
)
