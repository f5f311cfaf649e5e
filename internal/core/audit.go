package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/logging"
	"github.com/google/uuid"
)

// BucketAudit holds the job event trail.
const BucketAudit = "audit"

// AuditAction names a recorded job event.
type AuditAction string

const (
	ActionUpload         AuditAction = "upload"
	ActionUploadRejected AuditAction = "upload_rejected"
	ActionCommit         AuditAction = "commit"
	ActionCommitFailed   AuditAction = "commit_failed"
	ActionExpire         AuditAction = "expire"
)

// AuditSeverity ranks events for display.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// AuditEntry is one event in a job's history.
type AuditEntry struct {
	ID           string        `json:"id"`
	Action       AuditAction   `json:"action"`
	Severity     AuditSeverity `json:"severity"`
	JobID        uuid.UUID     `json:"jobId"`
	UploadID     uuid.UUID     `json:"uploadId,omitzero"`
	IPAddress    string        `json:"ipAddress,omitempty"`
	RowsAffected int           `json:"rowsAffected,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// determineSeverity returns the severity for an action. Ledger writes rank
// highest.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionCommit, ActionCommitFailed:
		return SeverityHigh
	case ActionUploadRejected, ActionExpire:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// RecordAudit appends an entry. Keys sort by creation time so a Scan
// returns entries oldest first.
func (t *Tracker) RecordAudit(ctx context.Context, entry AuditEntry) (AuditEntry, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.now()
	}
	entry.ID = fmt.Sprintf("%020d-%s", entry.CreatedAt.UnixNano(), uuid.NewString())
	entry.Severity = determineSeverity(entry.Action)

	data, err := json.Marshal(entry)
	if err != nil {
		return entry, err
	}
	return entry, t.store.Put(ctx, BucketAudit, entry.ID, data)
}

// AuditLog returns the entries for jobID, oldest first. A nil jobID returns
// every entry.
func (t *Tracker) AuditLog(ctx context.Context, jobID uuid.UUID) ([]AuditEntry, error) {
	var entries []AuditEntry
	err := t.store.Scan(ctx, BucketAudit, func(key string, value []byte) error {
		var entry AuditEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			return fmt.Errorf("decode audit entry %s: %w", key, err)
		}
		if jobID == uuid.Nil || entry.JobID == jobID {
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// AuditLog returns the recorded events for a job, oldest first.
func (s *Service) AuditLog(ctx context.Context, jobID uuid.UUID) ([]AuditEntry, error) {
	return s.tracker.AuditLog(ctx, jobID)
}

// audit records an event with the client IP from ctx. Failures are logged,
// never returned: the event trail must not fail an import.
func (s *Service) audit(ctx context.Context, entry AuditEntry) {
	if entry.IPAddress == "" {
		entry.IPAddress = GetIPAddressFromContext(ctx)
	}
	if _, err := s.tracker.RecordAudit(context.WithoutCancel(ctx), entry); err != nil {
		logging.FromContext(ctx).Error("failed to record audit entry",
			"action", entry.Action, "job_id", entry.JobID, "error", err)
	}
}
