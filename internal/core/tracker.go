package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
)

// State store buckets.
const (
	BucketJobs     = "jobs"
	BucketSessions = "sessions"
	BucketStatus   = "status"

	statusKey = "current"
)

// jobTransitions lists the allowed next states for each job state.
var jobTransitions = map[JobStatus][]JobStatus{
	JobUploaded:   {JobValidated, JobError},
	JobValidated:  {JobProcessing, JobError},
	JobProcessing: {JobProcessed, JobError},
}

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionValidated:  {SessionProcessing, SessionError},
	SessionProcessing: {SessionCommitted, SessionError},
}

// Tracker persists jobs, upload sessions and the status snapshot in a StateStore.
type Tracker struct {
	store StateStore
	now   func() time.Time
}

// NewTracker creates a Tracker over store.
func NewTracker(store StateStore) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// CreateJob stores a new job. The job must be in the uploaded state.
func (t *Tracker) CreateJob(ctx context.Context, job Job) error {
	if job.Status != JobUploaded {
		return errInvalidState("new job %s must start as %s, got %s", job.ID, JobUploaded, job.Status)
	}
	return t.store.Update(ctx, BucketJobs, job.ID.String(), func(current []byte) ([]byte, error) {
		if current != nil {
			return nil, errInvalidState("job %s already exists", job.ID)
		}
		return json.Marshal(job)
	})
}

// GetJob loads a job by ID.
func (t *Tracker) GetJob(ctx context.Context, id uuid.UUID) (Job, error) {
	var job Job
	data, err := t.store.Get(ctx, BucketJobs, id.String())
	if errors.Is(err, ErrNotFound) {
		return job, errJobNotFound(id.String())
	}
	if err != nil {
		return job, fmt.Errorf("load job %s: %w", id, err)
	}
	if err := json.Unmarshal(data, &job); err != nil {
		return job, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

// ListJobs returns every job, newest first.
func (t *Tracker) ListJobs(ctx context.Context) ([]Job, error) {
	var jobs []Job
	err := t.store.Scan(ctx, BucketJobs, func(key string, value []byte) error {
		var job Job
		if err := json.Unmarshal(value, &job); err != nil {
			return fmt.Errorf("decode job %s: %w", key, err)
		}
		jobs = append(jobs, job)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].UploadedAt.After(jobs[j].UploadedAt)
	})
	return jobs, nil
}

// FindJobByHash returns the most recent live job whose file had the given
// content hash. Jobs in error are skipped: their file is gone and the upload
// may be retried.
func (t *Tracker) FindJobByHash(ctx context.Context, hash string) (Job, bool, error) {
	jobs, err := t.ListJobs(ctx)
	if err != nil {
		return Job{}, false, err
	}
	for _, job := range jobs {
		if job.FileHash == hash && job.Status != JobError {
			return job, true, nil
		}
	}
	return Job{}, false, nil
}

// TransitionJob atomically moves a job to the next state. mutate, if non-nil,
// may edit other fields of the job in the same write. Returns an InvalidState
// error when the move is not allowed from the job's current state, which is
// how a second concurrent claim of the same job is rejected.
func (t *Tracker) TransitionJob(ctx context.Context, id uuid.UUID, to JobStatus, mutate func(*Job)) (Job, error) {
	var updated Job
	err := t.store.Update(ctx, BucketJobs, id.String(), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, errJobNotFound(id.String())
		}
		var job Job
		if err := json.Unmarshal(current, &job); err != nil {
			return nil, fmt.Errorf("decode job %s: %w", id, err)
		}
		if !slices.Contains(jobTransitions[job.Status], to) {
			return nil, errInvalidState("job %s is %s, cannot move to %s", id, job.Status, to)
		}

		job.Status = to
		if mutate != nil {
			mutate(&job)
		}
		updated = job
		return json.Marshal(job)
	})
	return updated, err
}

// SaveSession stores a new upload session.
func (t *Tracker) SaveSession(ctx context.Context, session UploadSession) error {
	now := t.now()
	session.CreatedAt = now
	session.UpdatedAt = now
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return t.store.Put(ctx, BucketSessions, session.UploadID.String(), data)
}

// GetSession loads a session by upload ID.
func (t *Tracker) GetSession(ctx context.Context, uploadID uuid.UUID) (UploadSession, error) {
	var session UploadSession
	data, err := t.store.Get(ctx, BucketSessions, uploadID.String())
	if errors.Is(err, ErrNotFound) {
		return session, errSessionNotFound(uploadID.String())
	}
	if err != nil {
		return session, fmt.Errorf("load session %s: %w", uploadID, err)
	}
	if err := json.Unmarshal(data, &session); err != nil {
		return session, fmt.Errorf("decode session %s: %w", uploadID, err)
	}
	return session, nil
}

// TransitionSession atomically moves a session to the next state.
func (t *Tracker) TransitionSession(ctx context.Context, uploadID uuid.UUID, to SessionStatus) (UploadSession, error) {
	var updated UploadSession
	err := t.store.Update(ctx, BucketSessions, uploadID.String(), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, errSessionNotFound(uploadID.String())
		}
		var session UploadSession
		if err := json.Unmarshal(current, &session); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", uploadID, err)
		}
		if !slices.Contains(sessionTransitions[session.Status], to) {
			return nil, errInvalidState("session %s is %s, cannot move to %s", uploadID, session.Status, to)
		}
		session.Status = to
		session.UpdatedAt = t.now()
		updated = session
		return json.Marshal(session)
	})
	return updated, err
}

// DeleteSession removes a session record. Missing sessions are ignored.
func (t *Tracker) DeleteSession(ctx context.Context, uploadID uuid.UUID) error {
	return t.store.Delete(ctx, BucketSessions, uploadID.String())
}

// SetStatus overwrites the status snapshot.
func (t *Tracker) SetStatus(ctx context.Context, snap StatusSnapshot) error {
	snap.UpdatedAt = t.now()
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return t.store.Put(ctx, BucketStatus, statusKey, data)
}

// Status returns the current snapshot, or an "idle" snapshot if nothing has
// been recorded yet.
func (t *Tracker) Status(ctx context.Context) (StatusSnapshot, error) {
	var snap StatusSnapshot
	data, err := t.store.Get(ctx, BucketStatus, statusKey)
	if errors.Is(err, ErrNotFound) {
		return StatusSnapshot{Status: "idle"}, nil
	}
	if err != nil {
		return snap, fmt.Errorf("load status: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decode status: %w", err)
	}
	return snap, nil
}
