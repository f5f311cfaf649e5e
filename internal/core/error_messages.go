package core

// error_messages.go maps technical errors to user-facing messages with a
// support code. Import failures are mapped by ErrorKind; everything else is
// matched against errorPatterns (case-insensitive substring, first match wins).
//
// Codes:
//
//	VAL001-VAL003   row validation (date, required field, amount)
//	IMP001-IMP008   import pipeline (duplicates, references, sessions, jobs)
//	DB001-DB007     database constraints and connectivity
//	FILE001-FILE007 uploaded file problems
//	JOB001-JOB004   processing capacity, cancellation and timeouts
//	RATE001         request throttling
//	ERR000          fallback; check the logs for the technical error

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var kindMessages = map[ErrorKind]UserMessage{
	KindInvalidDate: {
		Message: "A row has an invalid transaction date",
		Action:  "Use day/month/year hour:minute:second, e.g. 01/06/24 10:00:00",
		Code:    "VAL001",
	},
	KindMissingField: {
		Message: "A row is missing a required field",
		Action:  "Every row needs a receipt number, stylist, service and amount",
		Code:    "VAL002",
	},
	KindInvalidAmount: {
		Message: "A row has an invalid amount",
		Action:  "Amounts must be positive numbers",
		Code:    "VAL003",
	},
	KindDuplicateReceipts: {
		Message: "Some receipt numbers have already been imported",
		Action:  "Remove the duplicate rows and upload again",
		Code:    "IMP001",
	},
	KindUnknownStylist: {
		Message: "The file names a stylist who is not registered",
		Action:  "Register the stylist, then upload the file again",
		Code:    "IMP002",
	},
	KindUnknownService: {
		Message: "The new-service placeholder is not registered",
		Action:  "Add a service named new-service to the catalog",
		Code:    "IMP003",
	},
	KindCommitFailed: {
		Message: "The import could not be saved and was rolled back",
		Action:  "No rows were imported. Upload the file again",
		Code:    "IMP004",
	},
	KindSessionNotFound: {
		Message: "The staged upload could not be found",
		Action:  "The upload may have expired. Please upload the file again",
		Code:    "IMP005",
	},
	KindSourceFileMissing: {
		Message: "The uploaded file is no longer available",
		Action:  "Please upload the file again",
		Code:    "IMP006",
	},
	KindJobNotFound: {
		Message: "Job not found",
		Action:  "Check the job ID returned by the upload",
		Code:    "IMP007",
	},
	KindInvalidState: {
		Message: "The job cannot be processed in its current state",
		Action:  "Check the job status before retrying",
		Code:    "IMP008",
	},
	KindDecode: {
		Message: "The spreadsheet could not be read",
		Action:  "Upload an .xlsx or .csv export with data below the header row",
		Code:    "FILE002",
	},
	KindUnsupportedFile: {
		Message: "Only .xlsx and .csv files are accepted",
		Action:  "Export the report as .xlsx and upload again",
		Code:    "FILE006",
	},
	KindDuplicateFile: {
		Message: "This file has already been uploaded",
		Action:  "Upload a different file, or allow the duplicate explicitly",
		Code:    "FILE007",
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// More specific patterns come before general ones.
var errorPatterns = []errorPattern{
	// Database constraints
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A receipt number already exists in the ledger",
			Action:  "Remove the duplicate rows and upload again",
			Code:    "DB001",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review your data for duplicate receipt numbers",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced stylist or service does not exist",
			Action:  "Register the stylist or service first",
			Code:    "DB003",
		},
	},

	// Database connectivity
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// Files
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller exports",
			Code:    "FILE001",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save the file as UTF-8",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a spreadsheet to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Please upload a spreadsheet with data rows",
			Code:    "FILE005",
		},
	},
	{
		pattern: "unsupported file type",
		msg: UserMessage{
			Message: "Only .xlsx and .csv files are accepted",
			Action:  "Export the report as .xlsx and upload again",
			Code:    "FILE006",
		},
	},

	// Processing
	{
		pattern: "too many jobs",
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "JOB001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "JOB002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Processing timed out",
			Action:  "Split the file into smaller exports and try again",
			Code:    "JOB003",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "JOB004",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Import errors are mapped by kind; other errors by pattern.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if ie, ok := AsImportError(err); ok {
		if msg, ok := kindMessages[ie.Kind]; ok {
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error (for logs) with its user message (for display).
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

// resultMessage is the message placed in an operation result. Import errors
// already read as user text; anything else goes through MapError.
func resultMessage(err error) string {
	if ie, ok := AsImportError(err); ok {
		return ie.Error()
	}
	return FormatUserError(err)
}
