package core

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// DefaultBatchSize bounds the number of rows in one INSERT statement.
const DefaultBatchSize = 500

// Committer moves resolved rows into the ledger. All batches for one upload
// share a single transaction: either every row lands or none does.
type Committer struct {
	ledger    Ledger
	batchSize int
}

// NewCommitter creates a Committer. batchSize <= 0 uses DefaultBatchSize.
func NewCommitter(ledger Ledger, batchSize int) *Committer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Committer{ledger: ledger, batchSize: batchSize}
}

// Commit inserts rows in batches, then reads back the staged-row count and
// the ledger total for the inserted receipts and clears the staged rows, all
// inside the same transaction. Any failure rolls everything back and returns
// a CommitFailed ImportError, or DuplicateReceipts if the ledger's unique
// constraint fired.
func (c *Committer) Commit(ctx context.Context, uploadID uuid.UUID, rows []ResolvedRow) (CommitResult, error) {
	ledgerRows := make([]LedgerRow, len(rows))
	receipts := make([]string, len(rows))
	for i, r := range rows {
		ledgerRows[i] = ToLedgerRow(r)
		receipts[i] = r.ReceiptNo
	}

	report := progressFromContext(ctx)

	var result CommitResult
	err := c.ledger.WithinTx(ctx, func(tx LedgerTx) error {
		for start := 0; start < len(ledgerRows); start += c.batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := min(start+c.batchSize, len(ledgerRows))
			if err := tx.InsertBatch(ctx, ledgerRows[start:end]); err != nil {
				return fmt.Errorf("insert batch %d-%d: %w", start, end, err)
			}
			if report != nil {
				report(end, len(ledgerRows))
			}
		}

		count, err := tx.CountStaged(ctx, uploadID)
		if err != nil {
			return fmt.Errorf("count staged rows: %w", err)
		}
		total, err := tx.SumAmounts(ctx, receipts)
		if err != nil {
			return fmt.Errorf("sum ledger amounts: %w", err)
		}
		if err := tx.ClearStaged(ctx, uploadID); err != nil {
			return fmt.Errorf("clear staged rows: %w", err)
		}

		result = CommitResult{RowsInserted: count, TotalAmount: total}
		return nil
	})
	if err != nil {
		if ie, ok := AsImportError(err); ok && ie.Kind == KindDuplicateReceipts {
			return CommitResult{}, ie
		}
		return CommitResult{}, errCommitFailed(err)
	}

	return result, nil
}

// ToLedgerRow converts a resolved row to its ledger form. Money is stored
// with two decimal places.
func ToLedgerRow(r ResolvedRow) LedgerRow {
	return LedgerRow{
		EntryDate: r.TransactionDate,
		StylistID: r.StylistID,
		ServiceID: r.ServiceID,
		Amount:    r.Amount.Round(2),
		Net:       r.NetAmount.Round(2),
		ReceiptNo: r.ReceiptNo,
	}
}
