package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RawRow is one spreadsheet row as decoded from the file: cell text keyed by
// column label (A, B, ... AA) in column order.
type RawRow struct {
	Labels []string
	Values []string
}

// Get returns the cell text for label, or "" if the row has no such column.
func (r RawRow) Get(label string) string {
	for i, l := range r.Labels {
		if l == label {
			return r.Values[i]
		}
	}
	return ""
}

// IsEmpty reports whether every cell in the row is blank.
func (r RawRow) IsEmpty() bool {
	for _, v := range r.Values {
		if CleanCell(v) != "" {
			return false
		}
	}
	return true
}

// NormalizedRow is a validated sales transaction.
// NetAmount is always Amount multiplied by the configured net ratio.
type NormalizedRow struct {
	TransactionDate time.Time       `json:"transaction_date"`
	ReceiptNo       string          `json:"receipt_no"`
	StylistName     string          `json:"stylist_name"`
	ServiceName     string          `json:"service_name"`
	Amount          decimal.Decimal `json:"amount"`
	NetAmount       decimal.Decimal `json:"net_amount"`
}

// ResolvedRow is a NormalizedRow whose names have been mapped to catalog IDs.
type ResolvedRow struct {
	NormalizedRow
	StylistID int64
	ServiceID int64
}

// LedgerRow is a permanent ledger entry. ReceiptNo is unique across the ledger.
type LedgerRow struct {
	EntryID   int64           `json:"entry_id"`
	EntryDate time.Time       `json:"entry_date"`
	StylistID int64           `json:"stylist_id"`
	ServiceID int64           `json:"service_id"`
	Amount    decimal.Decimal `json:"amount"`
	Net       decimal.Decimal `json:"net"`
	ReceiptNo string          `json:"receipt_no"`
}

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobUploaded   JobStatus = "uploaded"
	JobValidated  JobStatus = "validated"
	JobProcessing JobStatus = "processing"
	JobProcessed  JobStatus = "processed"
	JobError      JobStatus = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobProcessed || s == JobError
}

// SessionStatus is the lifecycle state of an UploadSession.
type SessionStatus string

const (
	SessionValidated  SessionStatus = "validated"
	SessionProcessing SessionStatus = "processing"
	SessionCommitted  SessionStatus = "committed"
	SessionError      SessionStatus = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionCommitted || s == SessionError
}

// Job is the durable record of one uploaded file. Jobs are never deleted.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	UploadID     uuid.UUID  `json:"upload_id"`
	Status       JobStatus  `json:"status"`
	FileName     string     `json:"file"`
	FileHash     string     `json:"file_hash,omitempty"`
	FilePath     string     `json:"file_path,omitempty"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	Message      string     `json:"message,omitempty"`
	UploadedFrom string     `json:"uploaded_from,omitempty"`
}

// UploadSession tracks staged rows waiting for a process trigger.
type UploadSession struct {
	UploadID       uuid.UUID     `json:"upload_id"`
	SourceFilePath string        `json:"source_file_path"`
	FileName       string        `json:"file_name"`
	FileHash       string        `json:"file_hash,omitempty"`
	Status         SessionStatus `json:"status"`
	TotalRows      int           `json:"total_rows"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// StatusSnapshot is the last reported progress, overwritten on every transition.
type StatusSnapshot struct {
	Status       string          `json:"status"`
	RowsInserted int             `json:"rowsInserted"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Message      string          `json:"message"`
	JobID        string          `json:"jobId,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Result status values shared by every operation result.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// StageResult is returned by StageUpload.
type StageResult struct {
	Status     string    `json:"status"`
	UploadID   uuid.UUID `json:"upload_id,omitzero"`
	TotalRows  int       `json:"total_rows,omitempty"`
	Message    string    `json:"message,omitempty"`
	Duplicates []string  `json:"duplicates,omitempty"`

	// Err holds the classified failure when Status is "error".
	Err *ImportError `json:"-"`
}

// UploadResult is returned by RegisterUpload.
type UploadResult struct {
	Status     string    `json:"status"`
	JobID      uuid.UUID `json:"jobId"`
	UploadID   uuid.UUID `json:"upload_id,omitzero"`
	TotalRows  int       `json:"total_rows,omitempty"`
	Message    string    `json:"message,omitempty"`
	Duplicates []string  `json:"duplicates,omitempty"`

	Err *ImportError `json:"-"`
}

// ProcessResult is returned by ProcessJob.
type ProcessResult struct {
	Status       string          `json:"status"`
	JobID        uuid.UUID       `json:"jobId"`
	RowsInserted int             `json:"rowsInserted,omitempty"`
	TotalAmount  decimal.Decimal `json:"totalAmount,omitzero"`
	Message      string          `json:"message,omitempty"`
	Duplicates   []string        `json:"duplicates,omitempty"`

	// Rewritten lists service names that were replaced by the new-service sentinel.
	Rewritten []string `json:"rewritten_services,omitempty"`

	// Retryable is set when the job was refused for lack of a processing
	// slot and is still validated.
	Retryable bool `json:"retryable,omitempty"`

	Err *ImportError `json:"-"`
}

// CommitResult is the advisory summary reported by the committer.
type CommitResult struct {
	RowsInserted int
	TotalAmount  decimal.Decimal
}
