package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/logging"
	"github.com/JonMunkholm/ledgerimport/internal/metrics"
	"github.com/google/uuid"
)

// cleanupTimeout bounds bookkeeping that must run after the job context ends.
const cleanupTimeout = 30 * time.Second

// MsgAlreadyProcessed is the result message for a job that already committed.
const MsgAlreadyProcessed = "job already processed"

// ProcessJob commits the staged rows of a validated job to the ledger.
//
// Calls for the same job are serialized in-process, and the durable
// validated -> processing claim rejects a second process. The staged rows are
// the source of truth: they are re-checked for duplicates, resolved and
// inserted in one transaction. On every exit after the claim the staged rows
// are cleared and the session and its file removed.
//
// The returned error is only set for faults before the claim (state store
// unreachable). Everything else is reported in the result.
func (s *Service) ProcessJob(ctx context.Context, jobID uuid.UUID) (ProcessResult, error) {
	unlock := s.jobLocks.Lock(jobID.String())
	defer unlock()

	job, err := s.tracker.GetJob(ctx, jobID)
	if err != nil {
		if ie, ok := AsImportError(err); ok {
			return rejected(jobID, ie.Error(), ie), nil
		}
		return ProcessResult{}, err
	}

	switch job.Status {
	case JobValidated:
	case JobProcessed:
		return rejected(jobID, MsgAlreadyProcessed, errInvalidState("job %s is %s", jobID, job.Status)), nil
	default:
		ie := errInvalidState("job %s is %s, expected %s", jobID, job.Status, JobValidated)
		return rejected(jobID, ie.Error(), ie), nil
	}

	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		res := rejected(jobID, FormatUserError(err), nil)
		res.Retryable = true
		return res, nil
	}
	defer release()
	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	job, err = s.tracker.TransitionJob(ctx, jobID, JobProcessing, nil)
	if err != nil {
		if ie, ok := AsImportError(err); ok {
			return rejected(jobID, ie.Error(), ie), nil
		}
		return ProcessResult{}, fmt.Errorf("claim job: %w", err)
	}

	log := logging.ForJob(ctx, jobID.String(), job.UploadID.String())
	s.setStatus(ctx, StatusSnapshot{
		Status:  string(JobProcessing),
		Message: "Processing job " + jobID.String(),
		JobID:   jobID.String(),
	})
	log.Info("job processing started")

	start := s.now()
	path := job.FilePath

	session, res, commit, err := s.commitStaged(ctx, log, job)
	if session.SourceFilePath != "" {
		path = session.SourceFilePath
	}
	if err != nil {
		metrics.ProcessDuration.WithLabelValues(metrics.OutcomeError).Observe(time.Since(start).Seconds())
		return s.failJob(ctx, log, job, path, err), nil
	}

	metrics.ProcessDuration.WithLabelValues(metrics.OutcomeSuccess).Observe(time.Since(start).Seconds())
	return s.completeJob(ctx, log, job, path, res, commit), nil
}

// commitStaged runs the commit phase for a claimed job.
func (s *Service) commitStaged(ctx context.Context, log *slog.Logger, job Job) (UploadSession, Resolution, CommitResult, error) {
	session, err := s.tracker.GetSession(ctx, job.UploadID)
	if err != nil {
		return UploadSession{}, Resolution{}, CommitResult{}, err
	}
	if _, err := s.tracker.TransitionSession(ctx, job.UploadID, SessionProcessing); err != nil {
		return session, Resolution{}, CommitResult{}, err
	}

	if _, err := os.Stat(session.SourceFilePath); err != nil {
		return session, Resolution{}, CommitResult{}, errSourceFileMissing(job.UploadID.String(), err)
	}

	rows, err := s.staging.Load(ctx, job.UploadID)
	if err != nil {
		return session, Resolution{}, CommitResult{}, fmt.Errorf("load staged rows: %w", err)
	}
	if len(rows) == 0 {
		return session, Resolution{}, CommitResult{}, errSessionNotFound("no staged rows for upload " + job.UploadID.String())
	}
	log.Debug("staged rows loaded", "rows", len(rows))

	if err := s.detector.PreCommit(ctx, rows); err != nil {
		if ie, ok := AsImportError(err); ok {
			metrics.DuplicateReceipts.WithLabelValues("pre_commit").Add(float64(len(ie.Receipts)))
		}
		return session, Resolution{}, CommitResult{}, err
	}

	res, err := s.resolver.Resolve(ctx, rows)
	if err != nil {
		return session, Resolution{}, CommitResult{}, err
	}
	if len(res.Rewritten) > 0 {
		metrics.ServicesRewritten.Add(float64(len(res.Rewritten)))
		log.Info("unknown services recorded as "+NewServiceSentinel, "services", res.Rewritten)
	}

	commit, err := s.committer.Commit(ctx, job.UploadID, res.Rows)
	if err != nil {
		return session, res, CommitResult{}, err
	}
	return session, res, commit, nil
}

// completeJob records a successful commit. The rows are already in the
// ledger, so bookkeeping runs even if the job context has expired.
func (s *Service) completeJob(ctx context.Context, log *slog.Logger, job Job, path string, res Resolution, commit CommitResult) ProcessResult {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	message := fmt.Sprintf("Inserted %d rows, total amount %s", commit.RowsInserted, commit.TotalAmount.StringFixed(2))
	if n := len(res.Rewritten); n > 0 {
		message += fmt.Sprintf(" (%d unknown services recorded as %s)", n, NewServiceSentinel)
	}

	processedAt := s.now()
	if _, err := s.tracker.TransitionJob(ctx, job.ID, JobProcessed, func(j *Job) {
		j.ProcessedAt = &processedAt
		j.Message = message
	}); err != nil {
		log.Error("failed to mark job as processed", "error", err)
	}
	if _, err := s.tracker.TransitionSession(ctx, job.UploadID, SessionCommitted); err != nil {
		log.Warn("failed to mark session as committed", "error", err)
	}
	if err := s.tracker.DeleteSession(ctx, job.UploadID); err != nil {
		log.Error("failed to delete session", "error", err)
	}
	removeFile(ctx, path)

	s.setStatus(ctx, StatusSnapshot{
		Status:       StatusSuccess,
		RowsInserted: commit.RowsInserted,
		TotalAmount:  commit.TotalAmount,
		Message:      message,
		JobID:        job.ID.String(),
	})

	s.audit(ctx, AuditEntry{
		Action:       ActionCommit,
		JobID:        job.ID,
		UploadID:     job.UploadID,
		RowsAffected: commit.RowsInserted,
		Reason:       message,
	})

	metrics.ProcessTotal.WithLabelValues(metrics.OutcomeSuccess, "").Inc()
	metrics.RowsCommitted.Add(float64(commit.RowsInserted))
	log.Info("job processed", "rows_inserted", commit.RowsInserted, "total_amount", commit.TotalAmount.StringFixed(2))

	return ProcessResult{
		Status:       StatusSuccess,
		JobID:        job.ID,
		RowsInserted: commit.RowsInserted,
		TotalAmount:  commit.TotalAmount,
		Message:      message,
		Rewritten:    res.Rewritten,
	}
}

// failJob moves a claimed job to error and discards everything it staged.
func (s *Service) failJob(ctx context.Context, log *slog.Logger, job Job, path string, cause error) ProcessResult {
	message := resultMessage(cause)
	ie, _ := AsImportError(cause)

	s.clearStaged(ctx, job.UploadID)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if _, err := s.tracker.TransitionJob(ctx, job.ID, JobError, func(j *Job) {
		j.Message = message
	}); err != nil {
		log.Error("failed to mark job as error", "error", err)
	}
	if _, err := s.tracker.TransitionSession(ctx, job.UploadID, SessionError); err != nil && KindOf(err) != KindSessionNotFound {
		log.Warn("failed to mark session as error", "error", err)
	}
	if err := s.tracker.DeleteSession(ctx, job.UploadID); err != nil {
		log.Error("failed to delete session", "error", err)
	}
	removeFile(ctx, path)

	s.setStatus(ctx, StatusSnapshot{
		Status:  StatusError,
		Message: message,
		JobID:   job.ID.String(),
	})

	s.audit(ctx, AuditEntry{
		Action:   ActionCommitFailed,
		JobID:    job.ID,
		UploadID: job.UploadID,
		Reason:   message,
	})

	kind := "internal"
	if ie != nil {
		kind = string(ie.Kind)
	}
	metrics.ProcessTotal.WithLabelValues(metrics.OutcomeError, kind).Inc()

	if ie != nil && !errors.Is(cause, context.DeadlineExceeded) {
		log.Warn("job failed", "kind", ie.Kind, "error", cause)
	} else {
		log.Error("job failed", "error", cause)
	}

	result := ProcessResult{
		Status:  StatusError,
		JobID:   job.ID,
		Message: message,
		Err:     ie,
	}
	if ie != nil {
		result.Duplicates = ie.Receipts
	}
	return result
}

// rejected is the result for a request refused before any state change.
func rejected(jobID uuid.UUID, message string, ie *ImportError) ProcessResult {
	return ProcessResult{
		Status:  StatusError,
		JobID:   jobID,
		Message: message,
		Err:     ie,
	}
}
