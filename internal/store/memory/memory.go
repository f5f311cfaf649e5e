// Package memory provides in-process implementations of the core storage
// interfaces. They back the CLI's dry runs and the tests.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StateStore is a bucketed key-value map guarded by a mutex.
type StateStore struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
}

// NewStateStore creates an empty StateStore.
func NewStateStore() *StateStore {
	return &StateStore{buckets: make(map[string]map[string][]byte)}
}

func (s *StateStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.buckets[bucket][key]
	if !ok {
		return nil, core.ErrNotFound
	}
	return slices.Clone(v), nil
}

func (s *StateStore) Put(_ context.Context, bucket, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(bucket, key, value)
	return nil
}

func (s *StateStore) put(bucket, key string, value []byte) {
	b, ok := s.buckets[bucket]
	if !ok {
		b = make(map[string][]byte)
		s.buckets[bucket] = b
	}
	b[key] = slices.Clone(value)
}

func (s *StateStore) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.buckets[bucket], key)
	return nil
}

// Scan visits keys in sorted order.
func (s *StateStore) Scan(_ context.Context, bucket string, fn func(key string, value []byte) error) error {
	s.mu.Lock()
	b := s.buckets[bucket]
	keys := make([]string, 0, len(b))
	values := make(map[string][]byte, len(b))
	for k, v := range b {
		keys = append(keys, k)
		values[k] = slices.Clone(v)
	}
	s.mu.Unlock()

	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *StateStore) Update(_ context.Context, bucket, key string, fn func(current []byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current []byte
	if v, ok := s.buckets[bucket][key]; ok {
		current = slices.Clone(v)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	s.put(bucket, key, next)
	return nil
}

// DB holds staged rows, the ledger and the name catalog in memory.
// It implements core.Staging, core.Ledger and core.Catalog.
type DB struct {
	mu       sync.Mutex
	staged   map[uuid.UUID][]core.NormalizedRow
	ledger   map[string]core.LedgerRow
	nextID   int64
	stylists map[string]int64
	services map[string]int64
	nextRef  int64

	// InsertHook, if set, runs before each batch insert. Returning an error
	// fails the batch and rolls back the transaction.
	InsertHook func(batch []core.LedgerRow) error

	batches []int
}

// New creates an empty DB with the new-service sentinel registered.
func New() *DB {
	db := &DB{
		staged:   make(map[uuid.UUID][]core.NormalizedRow),
		ledger:   make(map[string]core.LedgerRow),
		stylists: make(map[string]int64),
		services: make(map[string]int64),
	}
	db.AddService(core.NewServiceSentinel)
	return db
}

// AddStylist registers a stylist and returns its ID.
func (db *DB) AddStylist(name string) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.addRef(db.stylists, name)
}

// AddService registers a service and returns its ID.
func (db *DB) AddService(name string) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.addRef(db.services, name)
}

func (db *DB) addRef(m map[string]int64, name string) int64 {
	key := strings.ToLower(name)
	if id, ok := m[key]; ok {
		return id
	}
	db.nextRef++
	m[key] = db.nextRef
	return db.nextRef
}

// RemoveService drops a service from the catalog.
func (db *DB) RemoveService(name string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.services, strings.ToLower(name))
}

// ServiceID returns the ID registered for name.
func (db *DB) ServiceID(name string) (int64, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	id, ok := db.services[strings.ToLower(name)]
	return id, ok
}

// InsertLedgerRow writes one row straight into the ledger, outside any import.
func (db *DB) InsertLedgerRow(row core.LedgerRow) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.ledger[row.ReceiptNo]; ok {
		return core.ErrDuplicateReceipts([]string{row.ReceiptNo})
	}
	db.nextID++
	row.EntryID = db.nextID
	db.ledger[row.ReceiptNo] = row
	return nil
}

// LedgerRows returns every ledger row ordered by entry ID.
func (db *DB) LedgerRows() []core.LedgerRow {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows := make([]core.LedgerRow, 0, len(db.ledger))
	for _, r := range db.ledger {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].EntryID < rows[j].EntryID })
	return rows
}

// BatchSizes returns the row count of every committed batch insert, in order.
func (db *DB) BatchSizes() []int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.batches)
}

// Stage replaces the rows held for uploadID.
func (db *DB) Stage(_ context.Context, uploadID uuid.UUID, rows []core.NormalizedRow) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.staged[uploadID] = slices.Clone(rows)
	return nil
}

func (db *DB) Load(_ context.Context, uploadID uuid.UUID) ([]core.NormalizedRow, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return slices.Clone(db.staged[uploadID]), nil
}

func (db *DB) Clear(_ context.Context, uploadID uuid.UUID) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.staged, uploadID)
	return nil
}

// StagedUploads lists every upload ID that has staged rows, sorted.
func (db *DB) StagedUploads(_ context.Context) ([]uuid.UUID, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(db.staged))
	for id := range db.staged {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (db *DB) ExistingReceipts(_ context.Context, receipts []string) ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var found []string
	for _, r := range receipts {
		if _, ok := db.ledger[r]; ok {
			found = append(found, r)
		}
	}
	return found, nil
}

// WithinTx holds the DB lock for the whole of fn. Writes are buffered in the
// transaction and applied only when fn returns nil.
func (db *DB) WithinTx(ctx context.Context, fn func(tx core.LedgerTx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx := &ledgerTx{db: db, inserted: make(map[string]core.LedgerRow)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, r := range tx.order {
		row := tx.inserted[r]
		db.nextID++
		row.EntryID = db.nextID
		db.ledger[r] = row
	}
	for _, id := range tx.cleared {
		delete(db.staged, id)
	}
	db.batches = append(db.batches, tx.batches...)
	return nil
}

type ledgerTx struct {
	db       *DB
	inserted map[string]core.LedgerRow
	order    []string
	cleared  []uuid.UUID
	batches  []int
}

func (tx *ledgerTx) InsertBatch(_ context.Context, rows []core.LedgerRow) error {
	if tx.db.InsertHook != nil {
		if err := tx.db.InsertHook(rows); err != nil {
			return err
		}
	}

	var dups []string
	for _, r := range rows {
		_, inLedger := tx.db.ledger[r.ReceiptNo]
		_, inTx := tx.inserted[r.ReceiptNo]
		if inLedger || inTx {
			dups = append(dups, r.ReceiptNo)
			continue
		}
		tx.inserted[r.ReceiptNo] = r
		tx.order = append(tx.order, r.ReceiptNo)
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return core.ErrDuplicateReceipts(dups)
	}

	tx.batches = append(tx.batches, len(rows))
	return nil
}

func (tx *ledgerTx) CountStaged(_ context.Context, uploadID uuid.UUID) (int, error) {
	if slices.Contains(tx.cleared, uploadID) {
		return 0, nil
	}
	return len(tx.db.staged[uploadID]), nil
}

func (tx *ledgerTx) SumAmounts(_ context.Context, receipts []string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, r := range receipts {
		if row, ok := tx.inserted[r]; ok {
			total = total.Add(row.Amount)
		} else if row, ok := tx.db.ledger[r]; ok {
			total = total.Add(row.Amount)
		}
	}
	return total, nil
}

func (tx *ledgerTx) ClearStaged(_ context.Context, uploadID uuid.UUID) error {
	tx.cleared = append(tx.cleared, uploadID)
	return nil
}

func (db *DB) LookupStylists(_ context.Context, names []string) (map[string]int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return lookup(db.stylists, names), nil
}

func (db *DB) LookupServices(_ context.Context, names []string) (map[string]int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return lookup(db.services, names), nil
}

func lookup(m map[string]int64, names []string) map[string]int64 {
	out := make(map[string]int64, len(names))
	for _, n := range names {
		key := strings.ToLower(n)
		if id, ok := m[key]; ok {
			out[key] = id
		}
	}
	return out
}

var (
	_ core.StateStore = (*StateStore)(nil)
	_ core.Staging    = (*DB)(nil)
	_ core.Ledger     = (*DB)(nil)
	_ core.Catalog    = (*DB)(nil)
)
