package providers

import (
	"context"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/models"
)

// ManualID identifies hand-entered ledgers. Only their accounts can be
// managed by the user.
const ManualID = "manual"

// manualProvider backs hand-entered ledgers. There is no upstream, so a sync
// only confirms the connection.
type manualProvider struct {
	progress progressReporter
}

func NewManualProvider(progress progressReporter) *manualProvider {
	return &manualProvider{progress: progress}
}

func (p *manualProvider) ID() string { return ManualID }

func (p *manualProvider) Metadata() dto.ProviderMetadata {
	return dto.ProviderMetadata{ID: p.ID(), Name: "Manual entry", Type: models.ConnectionTypeBank}
}

func (p *manualProvider) Initiate(_ context.Context, _ *models.Connection, _ map[string]string) (dto.ConnectResult, error) {
	return dto.ConnectResult{Status: models.ConnectionActive}, nil
}

func (p *manualProvider) Sync(ctx context.Context, conn *models.Connection, _ map[string]string) (dto.SyncResult, error) {
	p.progress.Update(ctx, conn, "Nothing to fetch", 90)
	return dto.SyncResult{Status: "ok"}, nil
}
