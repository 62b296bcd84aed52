package providers

import (
	"context"
	"sort"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
)

// Adapter is one upstream integration. The orchestrator only sees this
// interface; payload parsing stays inside the adapter.
//
// Sync must be idempotent against unchanged upstream state: re-imported items
// update their existing rows, keyed by (account, external id).
type Adapter interface {
	ID() string
	Metadata() dto.ProviderMetadata
	// Initiate starts linking a connection. A non-nil ConnectResult.Config
	// replaces the connection's stored config.
	Initiate(ctx context.Context, conn *models.Connection, cfg map[string]string) (dto.ConnectResult, error)
	Sync(ctx context.Context, conn *models.Connection, cfg map[string]string) (dto.SyncResult, error)
}

// Disconnecter is implemented by adapters that hold upstream credentials
// which must be released when a connection is disabled.
type Disconnecter interface {
	Disconnect(ctx context.Context, conn *models.Connection) error
}

// progressReporter records sync milestones on the connection.
type progressReporter interface {
	Update(ctx context.Context, conn *models.Connection, stage string, progress int)
}

// transactionImporter merges one upstream item into the ledger.
type transactionImporter interface {
	Import(ctx context.Context, uid string, tx dto.ProviderTransaction) (dto.ImportOutcome, error)
}

type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.ID()] = a
	}
	return r
}

// Require returns the adapter for id or a validation error.
func (r *Registry) Require(id string) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, errs.NewValidationError("unknown provider: " + id)
	}
	return a, nil
}

func (r *Registry) List() []dto.ProviderMetadata {
	out := make([]dto.ProviderMetadata, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Metadata())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
