package core

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// mapState is a minimal StateStore for tests inside this package.
type mapState struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapState() *mapState {
	return &mapState{data: make(map[string][]byte)}
}

func (m *mapState) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[bucket+"/"+key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (m *mapState) Put(_ context.Context, bucket, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[bucket+"/"+key] = value
	return nil
}

func (m *mapState) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, bucket+"/"+key)
	return nil
}

func (m *mapState) Scan(_ context.Context, bucket string, fn func(string, []byte) error) error {
	m.mu.Lock()
	snapshot := make(map[string][]byte)
	var keys []string
	for k, v := range m.data {
		if rest, ok := strings.CutPrefix(k, bucket+"/"); ok {
			snapshot[rest] = v
			keys = append(keys, rest)
		}
	}
	m.mu.Unlock()

	slices.Sort(keys)
	for _, k := range keys {
		if err := fn(k, snapshot[k]); err != nil {
			return err
		}
	}
	return nil
}

func (m *mapState) Update(_ context.Context, bucket, key string, fn func([]byte) ([]byte, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(m.data[bucket+"/"+key])
	if err != nil {
		return err
	}
	m.data[bucket+"/"+key] = next
	return nil
}

// fakeLedger records committed rows; a transaction's writes are applied on success.
type fakeLedger struct {
	rows      map[string]LedgerRow
	staged    map[uuid.UUID]int
	batches   []int
	failAfter int // fail the Nth batch (1-based); 0 never fails
	lookups   int
}

func newFakeLedger(existing ...string) *fakeLedger {
	l := &fakeLedger{rows: make(map[string]LedgerRow), staged: make(map[uuid.UUID]int)}
	for _, r := range existing {
		l.rows[r] = LedgerRow{ReceiptNo: r}
	}
	return l
}

func (l *fakeLedger) ExistingReceipts(_ context.Context, receipts []string) ([]string, error) {
	l.lookups++
	var out []string
	for _, r := range receipts {
		if _, ok := l.rows[r]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *fakeLedger) WithinTx(_ context.Context, fn func(LedgerTx) error) error {
	tx := &fakeTx{ledger: l, pending: make(map[string]LedgerRow)}
	if err := fn(tx); err != nil {
		return err
	}
	for k, v := range tx.pending {
		l.rows[k] = v
	}
	for _, id := range tx.cleared {
		delete(l.staged, id)
	}
	l.batches = append(l.batches, tx.batches...)
	return nil
}

type fakeTx struct {
	ledger  *fakeLedger
	pending map[string]LedgerRow
	batches []int
	cleared []uuid.UUID
}

func (tx *fakeTx) InsertBatch(_ context.Context, rows []LedgerRow) error {
	tx.batches = append(tx.batches, len(rows))
	if tx.ledger.failAfter > 0 && len(tx.batches) == tx.ledger.failAfter {
		return errFakeInsert
	}
	for _, r := range rows {
		if _, ok := tx.ledger.rows[r.ReceiptNo]; ok {
			return ErrDuplicateReceipts([]string{r.ReceiptNo})
		}
		tx.pending[r.ReceiptNo] = r
	}
	return nil
}

func (tx *fakeTx) CountStaged(_ context.Context, uploadID uuid.UUID) (int, error) {
	return tx.ledger.staged[uploadID], nil
}

func (tx *fakeTx) SumAmounts(_ context.Context, receipts []string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, r := range receipts {
		total = total.Add(tx.pending[r].Amount)
	}
	return total, nil
}

func (tx *fakeTx) ClearStaged(_ context.Context, uploadID uuid.UUID) error {
	tx.cleared = append(tx.cleared, uploadID)
	return nil
}

type fakeInsertError struct{}

func (fakeInsertError) Error() string { return "connection reset by peer" }

var errFakeInsert error = fakeInsertError{}

// fakeCatalog counts lookups so tests can assert one query per name kind.
type fakeCatalog struct {
	stylists       map[string]int64
	services       map[string]int64
	stylistLookups int
	serviceLookups int
}

func (c *fakeCatalog) LookupStylists(_ context.Context, names []string) (map[string]int64, error) {
	c.stylistLookups++
	return pick(c.stylists, names), nil
}

func (c *fakeCatalog) LookupServices(_ context.Context, names []string) (map[string]int64, error) {
	c.serviceLookups++
	return pick(c.services, names), nil
}

func pick(m map[string]int64, names []string) map[string]int64 {
	out := make(map[string]int64)
	for _, n := range names {
		if id, ok := m[strings.ToLower(n)]; ok {
			out[strings.ToLower(n)] = id
		}
	}
	return out
}
