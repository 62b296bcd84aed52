package services

import (
	"context"

	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

type progressPRStore interface {
	SetProgress(ctx context.Context, uid, connectionID, stage string, progress int) error
}

// progressReporter writes sync milestones. Repeats of the current stage and
// progress are dropped and write failures are only logged.
type progressReporter struct {
	store progressPRStore
}

func NewProgressReporter(store progressPRStore) *progressReporter {
	return &progressReporter{store: store}
}

func (p *progressReporter) Update(ctx context.Context, conn *models.Connection, stage string, progress int) {
	progress = max(0, min(100, progress))
	if conn.SyncStage == stage && conn.SyncProgress == progress {
		return
	}
	conn.SyncStage = stage
	conn.SyncProgress = progress

	if err := p.store.SetProgress(ctx, conn.UID, conn.ConnectionID, stage, progress); err != nil {
		logger.FromContext(ctx).Warn("failed to record sync progress", "stage", stage, "progress", progress, "error", err)
	}
}
