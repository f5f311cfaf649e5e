// Package admin provides maintenance operations on the import databases.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/ledgerimport/internal/core"
	"github.com/google/uuid"
)

// PurgeTimeout is the maximum duration for a purge run.
const PurgeTimeout = 30 * time.Second

// StagingLister is the staging store as seen by the purge.
type StagingLister interface {
	StagedUploads(ctx context.Context) ([]uuid.UUID, error)
	Clear(ctx context.Context, uploadID uuid.UUID) error
}

// Purger removes staged rows that no upload session refers to. Such rows are
// left behind when a process dies between staging and recording the session.
//
// A stage in flight also has rows without a session for a moment, so a purge
// must not run while uploads are being accepted.
type Purger struct {
	Staging StagingLister
	Tracker *core.Tracker
}

// PurgeResult lists the orphaned upload IDs found.
type PurgeResult struct {
	Orphans []uuid.UUID
	Cleared int
}

// PurgeOrphans finds staged uploads with no session and, unless dryRun,
// clears them.
func (p *Purger) PurgeOrphans(ctx context.Context, dryRun bool) (PurgeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, PurgeTimeout)
	defer cancel()

	ids, err := p.Staging.StagedUploads(ctx)
	if err != nil {
		return PurgeResult{}, fmt.Errorf("list staged uploads: %w", err)
	}

	var res PurgeResult
	for _, id := range ids {
		_, err := p.Tracker.GetSession(ctx, id)
		if err == nil {
			continue
		}
		if core.KindOf(err) != core.KindSessionNotFound {
			return res, fmt.Errorf("check session %s: %w", id, err)
		}
		res.Orphans = append(res.Orphans, id)
	}

	if dryRun {
		return res, nil
	}

	for _, id := range res.Orphans {
		if err := p.Staging.Clear(ctx, id); err != nil {
			return res, fmt.Errorf("clear %s: %w", id, err)
		}
		res.Cleared++
		slog.Info("purged orphaned staged rows", "upload_id", id)
	}
	return res, nil
}
