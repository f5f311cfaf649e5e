package core

// sweeper.go expires uploads that were staged but never processed.
//
// A job sits in validated until a client triggers processing. If that never
// happens its staged rows, session record and source file would linger, so a
// background sweeper periodically moves such jobs to error and discards what
// they staged. Jobs stuck in uploaded (the process died mid-stage) are
// expired the same way. Processing jobs are left alone: they are bounded by
// the process timeout.

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/metrics"
	"github.com/google/uuid"
)

// SweepConfig holds configuration for the session sweeper.
type SweepConfig struct {
	SessionTTL    time.Duration // How long a job may wait before processing (default: 24h)
	CheckInterval time.Duration // How often to run (default: 1h)
}

// MsgSessionExpired is recorded on jobs expired by the sweeper.
const MsgSessionExpired = "upload expired before processing; please upload the file again"

// StartSweeper runs the sweeper until ctx is cancelled. It sweeps immediately
// on start, then every CheckInterval.
func (s *Service) StartSweeper(ctx context.Context, cfg SweepConfig) {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}

	slog.Info("session sweeper started",
		"session_ttl", cfg.SessionTTL,
		"interval", cfg.CheckInterval,
	)

	s.runSweep(ctx, cfg.SessionTTL)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case <-ticker.C:
			s.runSweep(ctx, cfg.SessionTTL)
		}
	}
}

func (s *Service) runSweep(ctx context.Context, ttl time.Duration) {
	start := time.Now()
	expired, err := s.SweepExpired(ctx, ttl)
	if err != nil {
		slog.Error("session sweep failed", "error", err)
		return
	}
	slog.Info("session sweep completed",
		"jobs_expired", expired,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// SweepExpired expires every uploaded or validated job older than ttl and
// returns how many were expired.
func (s *Service) SweepExpired(ctx context.Context, ttl time.Duration) (int, error) {
	jobs, err := s.tracker.ListJobs(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-ttl)
	expired := 0
	for _, job := range jobs {
		if job.Status != JobUploaded && job.Status != JobValidated {
			continue
		}
		if job.UploadedAt.After(cutoff) {
			continue
		}
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		if s.expireJob(ctx, job) {
			expired++
		}
	}
	return expired, nil
}

// expireJob takes the job lock so a concurrent ProcessJob either finishes its
// claim first or sees the job already in error.
func (s *Service) expireJob(ctx context.Context, job Job) bool {
	unlock := s.jobLocks.Lock(job.ID.String())
	defer unlock()

	if _, err := s.tracker.TransitionJob(ctx, job.ID, JobError, func(j *Job) {
		j.Message = MsgSessionExpired
	}); err != nil {
		slog.Debug("job not expired", "job_id", job.ID, "error", err)
		return false
	}

	path := job.FilePath
	if job.UploadID != uuid.Nil {
		if session, err := s.tracker.GetSession(ctx, job.UploadID); err == nil && session.SourceFilePath != "" {
			path = session.SourceFilePath
		}
		s.clearStaged(ctx, job.UploadID)
		if err := s.tracker.DeleteSession(ctx, job.UploadID); err != nil {
			slog.Error("failed to delete expired session", "upload_id", job.UploadID, "error", err)
		}
	}
	removeFile(ctx, path)

	s.audit(ctx, AuditEntry{
		Action:   ActionExpire,
		JobID:    job.ID,
		UploadID: job.UploadID,
		Reason:   MsgSessionExpired,
	})

	metrics.SessionsSwept.Inc()
	slog.Info("expired stale job", "job_id", job.ID, "status", job.Status, "uploaded_at", job.UploadedAt)
	return true
}
