package core

import (
	"context"
	"fmt"
	"sort"
)

// DuplicateDetector finds receipt numbers that would break ledger uniqueness.
type DuplicateDetector struct {
	ledger LedgerReader
}

// NewDuplicateDetector creates a detector backed by ledger.
func NewDuplicateDetector(ledger LedgerReader) *DuplicateDetector {
	return &DuplicateDetector{ledger: ledger}
}

// PreStage checks freshly parsed rows before anything is staged. Receipts
// repeated inside the file and receipts already in the ledger are both
// reported. Returns a DuplicateReceipts ImportError listing every offender.
func (d *DuplicateDetector) PreStage(ctx context.Context, rows []NormalizedRow) error {
	return d.check(ctx, rows)
}

// PreCommit re-checks staged rows against the ledger immediately before the
// commit, catching receipts inserted by another job since staging.
func (d *DuplicateDetector) PreCommit(ctx context.Context, rows []NormalizedRow) error {
	return d.check(ctx, rows)
}

func (d *DuplicateDetector) check(ctx context.Context, rows []NormalizedRow) error {
	receipts, repeated := distinctReceipts(rows)

	existing, err := d.ledger.ExistingReceipts(ctx, receipts)
	if err != nil {
		return fmt.Errorf("check ledger receipts: %w", err)
	}

	dups := mergeSorted(repeated, existing)
	if len(dups) > 0 {
		return ErrDuplicateReceipts(dups)
	}
	return nil
}

// distinctReceipts returns every receipt number once, plus those that occur
// more than once.
func distinctReceipts(rows []NormalizedRow) (distinct, repeated []string) {
	seen := make(map[string]int, len(rows))
	for _, r := range rows {
		seen[r.ReceiptNo]++
		if seen[r.ReceiptNo] == 1 {
			distinct = append(distinct, r.ReceiptNo)
		} else if seen[r.ReceiptNo] == 2 {
			repeated = append(repeated, r.ReceiptNo)
		}
	}
	return distinct, repeated
}

// ReceiptNumbers returns the distinct receipt numbers in rows, in first-seen order.
func ReceiptNumbers(rows []NormalizedRow) []string {
	distinct, _ := distinctReceipts(rows)
	return distinct
}

func mergeSorted(sets ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, set := range sets {
		for _, s := range set {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
