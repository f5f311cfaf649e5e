package core

import (
	"context"
	"fmt"
	"os"

	"github.com/JonMunkholm/ledgerimport/internal/logging"
	"github.com/JonMunkholm/ledgerimport/internal/metrics"
	"github.com/google/uuid"
)

// StageUpload decodes and validates the spreadsheet at path, stages its rows
// under a new upload ID and records a validated session.
//
// Import failures (bad rows, duplicate receipts, unreadable file) come back
// in the result with Status "error" and nothing staged. The returned error is
// reserved for infrastructure faults.
func (s *Service) StageUpload(ctx context.Context, path string) (StageResult, error) {
	return s.stage(ctx, path, "", "")
}

func (s *Service) stage(ctx context.Context, path, fileName, hash string) (StageResult, error) {
	log := logging.FromContext(ctx).With("path", path)

	rows, err := s.parse(ctx, path)
	if err != nil {
		return s.stageFailed(ctx, err)
	}

	if err := s.detector.PreStage(ctx, rows); err != nil {
		if ie, ok := AsImportError(err); ok {
			metrics.DuplicateReceipts.WithLabelValues("pre_stage").Add(float64(len(ie.Receipts)))
		}
		return s.stageFailed(ctx, err)
	}

	uploadID := uuid.New()
	if err := s.staging.Stage(ctx, uploadID, rows); err != nil {
		return StageResult{}, fmt.Errorf("stage rows: %w", err)
	}

	if fileName == "" {
		fileName = path
	}
	session := UploadSession{
		UploadID:       uploadID,
		SourceFilePath: path,
		FileName:       fileName,
		FileHash:       hash,
		Status:         SessionValidated,
		TotalRows:      len(rows),
	}
	if err := s.tracker.SaveSession(ctx, session); err != nil {
		s.clearStaged(ctx, uploadID)
		return StageResult{}, fmt.Errorf("save session: %w", err)
	}

	metrics.StagesTotal.WithLabelValues(metrics.OutcomeSuccess, "").Inc()
	metrics.RowsStaged.Add(float64(len(rows)))
	log.Info("upload staged", "upload_id", uploadID, "rows", len(rows))

	return StageResult{
		Status:    StatusSuccess,
		UploadID:  uploadID,
		TotalRows: len(rows),
		Message:   fmt.Sprintf("%d rows validated and staged", len(rows)),
	}, nil
}

// parse decodes and normalizes every row of the file.
func (s *Service) parse(ctx context.Context, path string) ([]NormalizedRow, error) {
	raw, err := s.decoder.Decode(ctx, path)
	if err != nil {
		if _, ok := AsImportError(err); ok {
			return nil, err
		}
		return nil, ErrDecode(err)
	}

	rows, err := s.normalizer.NormalizeAll(raw)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile()
	}
	return rows, nil
}

// stageFailed turns an import error into an error result. Anything else is
// returned to the caller as an infrastructure fault.
func (s *Service) stageFailed(ctx context.Context, err error) (StageResult, error) {
	ie, ok := AsImportError(err)
	if !ok {
		return StageResult{}, err
	}

	metrics.StagesTotal.WithLabelValues(metrics.OutcomeError, string(ie.Kind)).Inc()
	logging.FromContext(ctx).Warn("staging rejected", "kind", ie.Kind, "error", ie)

	return StageResult{
		Status:     StatusError,
		Message:    ie.Error(),
		Duplicates: ie.Receipts,
		Err:        ie,
	}, nil
}

// RegisterRequest identifies a saved upload to register as a job.
type RegisterRequest struct {
	FileName     string
	Path         string
	Hash         string
	UploadedFrom string
}

// RegisterUpload creates a job for a saved file and stages it. The job ends
// validated, bound to the new upload ID, or in error with the file removed.
func (s *Service) RegisterUpload(ctx context.Context, req RegisterRequest) (UploadResult, error) {
	job := Job{
		ID:           uuid.New(),
		Status:       JobUploaded,
		FileName:     req.FileName,
		FileHash:     req.Hash,
		FilePath:     req.Path,
		UploadedAt:   s.now(),
		UploadedFrom: req.UploadedFrom,
	}
	if err := s.tracker.CreateJob(ctx, job); err != nil {
		return UploadResult{}, fmt.Errorf("create job: %w", err)
	}

	log := logging.ForJob(ctx, job.ID.String(), "")
	log.Info("upload received", "file", req.FileName)

	staged, err := s.stage(ctx, req.Path, req.FileName, req.Hash)
	if err != nil {
		s.failUpload(ctx, job, err.Error())
		return UploadResult{}, err
	}

	if staged.Status != StatusSuccess {
		s.failUpload(ctx, job, staged.Message)
		return UploadResult{
			Status:     StatusError,
			JobID:      job.ID,
			Message:    staged.Message,
			Duplicates: staged.Duplicates,
			Err:        staged.Err,
		}, nil
	}

	_, err = s.tracker.TransitionJob(ctx, job.ID, JobValidated, func(j *Job) {
		j.UploadID = staged.UploadID
		j.Message = staged.Message
	})
	if err != nil {
		s.discardSession(ctx, staged.UploadID, req.Path)
		return UploadResult{}, fmt.Errorf("mark job validated: %w", err)
	}

	s.setStatus(ctx, StatusSnapshot{
		Status:  string(JobValidated),
		Message: staged.Message,
		JobID:   job.ID.String(),
	})
	s.audit(ctx, AuditEntry{
		Action:       ActionUpload,
		JobID:        job.ID,
		UploadID:     staged.UploadID,
		IPAddress:    req.UploadedFrom,
		RowsAffected: staged.TotalRows,
	})
	log.Info("job validated", "upload_id", staged.UploadID, "rows", staged.TotalRows)

	return UploadResult{
		Status:    StatusSuccess,
		JobID:     job.ID,
		UploadID:  staged.UploadID,
		TotalRows: staged.TotalRows,
		Message:   staged.Message,
	}, nil
}

// failUpload moves a job that never staged to error and removes its file.
func (s *Service) failUpload(ctx context.Context, job Job, message string) {
	log := logging.ForJob(ctx, job.ID.String(), "")

	if _, err := s.tracker.TransitionJob(ctx, job.ID, JobError, func(j *Job) {
		j.Message = message
	}); err != nil {
		log.Error("failed to mark job as error", "error", err)
	}
	removeFile(ctx, job.FilePath)

	s.setStatus(ctx, StatusSnapshot{
		Status:  StatusError,
		Message: message,
		JobID:   job.ID.String(),
	})
	s.audit(ctx, AuditEntry{
		Action:    ActionUploadRejected,
		JobID:     job.ID,
		IPAddress: job.UploadedFrom,
		Reason:    message,
	})
	log.Warn("upload rejected", "message", message)
}

// discardSession clears staged rows and removes the session and its file.
func (s *Service) discardSession(ctx context.Context, uploadID uuid.UUID, path string) {
	s.clearStaged(ctx, uploadID)
	if err := s.tracker.DeleteSession(ctx, uploadID); err != nil {
		logging.FromContext(ctx).Error("failed to delete session", "upload_id", uploadID, "error", err)
	}
	removeFile(ctx, path)
}

// clearStaged removes staged rows even when ctx is already cancelled.
func (s *Service) clearStaged(ctx context.Context, uploadID uuid.UUID) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := s.staging.Clear(cleanupCtx, uploadID); err != nil {
		logging.FromContext(ctx).Error("failed to clear staged rows", "upload_id", uploadID, "error", err)
	}
}

// setStatus overwrites the snapshot, logging rather than failing on error.
func (s *Service) setStatus(ctx context.Context, snap StatusSnapshot) {
	if err := s.tracker.SetStatus(context.WithoutCancel(ctx), snap); err != nil {
		logging.FromContext(ctx).Error("failed to write status snapshot", "error", err)
	}
}

func removeFile(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.FromContext(ctx).Warn("failed to remove upload file", "path", path, "error", err)
	}
}
