package core

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// ErrorKind classifies an import failure. The orchestrator switches on the
// kind to decide the next state transition.
type ErrorKind string

const (
	KindInvalidDate       ErrorKind = "invalid_date"
	KindMissingField      ErrorKind = "missing_field"
	KindInvalidAmount     ErrorKind = "invalid_amount"
	KindDuplicateReceipts ErrorKind = "duplicate_receipts"
	KindUnknownStylist    ErrorKind = "unknown_stylist"
	KindUnknownService    ErrorKind = "unknown_service"
	KindCommitFailed      ErrorKind = "commit_failed"
	KindSessionNotFound   ErrorKind = "session_not_found"
	KindSourceFileMissing ErrorKind = "source_file_missing"
	KindJobNotFound       ErrorKind = "job_not_found"
	KindInvalidState      ErrorKind = "invalid_state"
	KindDecode            ErrorKind = "decode"
	KindUnsupportedFile   ErrorKind = "unsupported_file"
	KindDuplicateFile     ErrorKind = "duplicate_file"
)

// MaxDisplayedReceipts caps how many duplicate receipt numbers appear in a message.
const MaxDisplayedReceipts = 5

// ImportError is the single error type returned by the pipeline stages.
// Only the fields relevant to Kind are set.
type ImportError struct {
	Kind     ErrorKind
	Row      int      // 1-based spreadsheet row for row errors
	Field    string   // field name for MissingField
	Value    string   // offending cell text
	Names    []string // unknown stylist or service names
	Receipts []string // duplicate receipt numbers, sorted
	Detail   string
	JobID    string // earlier job for DuplicateFile
	Err      error
}

func (e *ImportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case KindInvalidDate:
		return fmt.Sprintf("row %d: invalid date %q (expected d/m/yy H:M:S or d/m/yyyy H:M:S)", e.Row, e.Value)
	case KindMissingField:
		return fmt.Sprintf("row %d: required field %s is missing", e.Row, e.Field)
	case KindInvalidAmount:
		return fmt.Sprintf("row %d: invalid amount %q (must be greater than zero)", e.Row, e.Value)
	case KindDuplicateReceipts:
		return "duplicate receipt numbers found: " + FormatReceipts(e.Receipts)
	case KindUnknownStylist:
		return fmt.Sprintf("unknown stylist: %s. Register the stylist and upload again", strings.Join(e.Names, ", "))
	case KindUnknownService:
		return fmt.Sprintf("unknown service: %s", strings.Join(e.Names, ", "))
	case KindCommitFailed:
		return fmt.Sprintf("commit failed: %v", e.Err)
	case KindSessionNotFound:
		return "upload session not found: " + e.Detail
	case KindSourceFileMissing:
		return "source file missing for upload " + e.Detail
	case KindJobNotFound:
		return "job not found: " + e.Detail
	case KindInvalidState:
		return "invalid job state: " + e.Detail
	case KindDecode:
		if e.Err != nil {
			return fmt.Sprintf("could not read spreadsheet: %v", withoutPath(e.Err))
		}
		return "could not read spreadsheet: " + e.Detail
	case KindUnsupportedFile:
		return "unsupported file type: " + e.Detail
	case KindDuplicateFile:
		return fmt.Sprintf("this file was already uploaded as job %s", e.JobID)
	}
	return string(e.Kind)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// IsRowError reports whether the failure is tied to a single spreadsheet row.
func (e *ImportError) IsRowError() bool {
	switch e.Kind {
	case KindInvalidDate, KindMissingField, KindInvalidAmount:
		return true
	}
	return false
}

// withoutPath drops the file path from an *fs.PathError so messages shown to
// clients do not reveal the upload directory.
func withoutPath(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

// FormatReceipts renders receipt numbers for display, truncating after
// MaxDisplayedReceipts with "and more...".
func FormatReceipts(receipts []string) string {
	if len(receipts) <= MaxDisplayedReceipts {
		return strings.Join(receipts, ", ")
	}
	return strings.Join(receipts[:MaxDisplayedReceipts], ", ") + " and more..."
}

// AsImportError extracts an *ImportError from err's chain. A nil
// *ImportError stored in a non-nil error is reported as not found.
func AsImportError(err error) (*ImportError, bool) {
	var ie *ImportError
	if errors.As(err, &ie) && ie != nil {
		return ie, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" if err is not an ImportError.
func KindOf(err error) ErrorKind {
	if ie, ok := AsImportError(err); ok {
		return ie.Kind
	}
	return ""
}

func errInvalidDate(row int, value string) *ImportError {
	return &ImportError{Kind: KindInvalidDate, Row: row, Value: value}
}

func errMissingField(row int, field string) *ImportError {
	return &ImportError{Kind: KindMissingField, Row: row, Field: field}
}

func errInvalidAmount(row int, value string) *ImportError {
	return &ImportError{Kind: KindInvalidAmount, Row: row, Value: value}
}

// ErrDuplicateReceipts builds a DuplicateReceipts error. receipts should be sorted.
func ErrDuplicateReceipts(receipts []string) *ImportError {
	return &ImportError{Kind: KindDuplicateReceipts, Receipts: receipts}
}

func errUnknownStylist(names []string) *ImportError {
	return &ImportError{Kind: KindUnknownStylist, Names: names}
}

func errUnknownService(names []string) *ImportError {
	return &ImportError{Kind: KindUnknownService, Names: names}
}

func errCommitFailed(cause error) *ImportError {
	return &ImportError{Kind: KindCommitFailed, Err: cause}
}

func errSessionNotFound(detail string) *ImportError {
	return &ImportError{Kind: KindSessionNotFound, Detail: detail}
}

// errSourceFileMissing keeps the server path in cause only, which is logged
// but never shown.
func errSourceFileMissing(uploadID string, cause error) *ImportError {
	return &ImportError{Kind: KindSourceFileMissing, Detail: uploadID, Err: cause}
}

func errJobNotFound(id string) *ImportError {
	return &ImportError{Kind: KindJobNotFound, Detail: id}
}

func errInvalidState(format string, args ...any) *ImportError {
	return &ImportError{Kind: KindInvalidState, Detail: fmt.Sprintf(format, args...)}
}

// ErrDecode wraps a spreadsheet decoding failure.
func ErrDecode(cause error) *ImportError {
	return &ImportError{Kind: KindDecode, Err: cause}
}

// ErrEmptyFile is returned when a spreadsheet has no data rows.
func ErrEmptyFile() *ImportError {
	return &ImportError{Kind: KindDecode, Detail: "empty file: no data rows below the header"}
}

func errUnsupportedFile(ext string) *ImportError {
	return &ImportError{Kind: KindUnsupportedFile, Detail: ext}
}

func errDuplicateFile(jobID string) *ImportError {
	return &ImportError{Kind: KindDuplicateFile, JobID: jobID}
}
