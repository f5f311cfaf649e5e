package postgres

import (
	"context"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func TestNumericRoundTrip(t *testing.T) {
	tests := []string{"0", "86", "45.5", "17.1914", "-3.25", "1234567.89"}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			d := decimal.RequireFromString(in)
			got, err := fromPgNumeric(toPgNumeric(d))
			if err != nil {
				t.Fatalf("fromPgNumeric failed: %v", err)
			}
			if !got.Equal(d) {
				t.Errorf("round trip = %s, want %s", got, d)
			}
		})
	}
}

func TestFromPgNumeric_Special(t *testing.T) {
	if got, err := fromPgNumeric(pgtype.Numeric{}); err != nil || !got.IsZero() {
		t.Errorf("NULL numeric = %s, %v; want 0, nil", got, err)
	}
	if _, err := fromPgNumeric(pgtype.Numeric{NaN: true, Valid: true}); err == nil {
		t.Error("NaN should fail")
	}
}

func TestDuplicateKeys(t *testing.T) {
	tests := []struct {
		detail string
		want   []string
	}{
		{detail: "Key (receipt_no)=(R-1001) already exists.", want: []string{"R-1001"}},
		{detail: "something else", want: nil},
	}

	for _, tt := range tests {
		if got := duplicateKeys(tt.detail); !slices.Equal(got, tt.want) {
			t.Errorf("duplicateKeys(%q) = %v, want %v", tt.detail, got, tt.want)
		}
	}
}

// testStore connects to LEDGER_TEST_DATABASE_URL, skipping when it is unset.
func testStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	s := New(pool)
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

func TestStore_StageLoadClear(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	uploadID := uuid.New()

	rows := []core.NormalizedRow{
		{
			TransactionDate: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
			ReceiptNo:       "T-" + uploadID.String()[:8],
			StylistName:     "Anna",
			ServiceName:     "Cut",
			Amount:          decimal.RequireFromString("19.99"),
			NetAmount:       decimal.RequireFromString("17.1914"),
		},
	}
	if err := s.Stage(ctx, uploadID, rows); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	t.Cleanup(func() { s.Clear(ctx, uploadID) })

	got, err := s.Load(ctx, uploadID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 1 || !got[0].NetAmount.Equal(rows[0].NetAmount) {
		t.Errorf("Load = %+v, want the staged row with exact net", got)
	}

	if err := s.Clear(ctx, uploadID); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if got, _ := s.Load(ctx, uploadID); len(got) != 0 {
		t.Errorf("Load after Clear = %d rows, want 0", len(got))
	}
}

func TestStore_DuplicateInsertRollsBack(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	stylist, err := s.AddStylist(ctx, "Test Stylist")
	if err != nil {
		t.Fatalf("AddStylist failed: %v", err)
	}
	services, _ := s.LookupServices(ctx, []string{core.NewServiceSentinel})
	service := services[core.NewServiceSentinel]

	receipt := "T-" + uuid.NewString()[:8]
	row := core.LedgerRow{
		EntryDate: time.Now().UTC().Truncate(time.Second),
		StylistID: stylist,
		ServiceID: service,
		Amount:    decimal.NewFromInt(10),
		Net:       decimal.RequireFromString("8.60"),
		ReceiptNo: receipt,
	}

	err = s.WithinTx(ctx, func(tx core.LedgerTx) error {
		return tx.InsertBatch(ctx, []core.LedgerRow{row, row})
	})
	if core.KindOf(err) != core.KindDuplicateReceipts {
		t.Fatalf("error = %v, want DuplicateReceipts", err)
	}

	existing, _ := s.ExistingReceipts(ctx, []string{receipt})
	if len(existing) != 0 {
		t.Errorf("receipt %s was committed despite rollback", receipt)
	}
}
