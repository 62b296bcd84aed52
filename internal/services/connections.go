package services

import (
	"context"
	"maps"
	"strings"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/internal/providers"
	"github.com/GregMSThompson/finance-sync/pkg/helpers"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

type connectionCSStore interface {
	Create(ctx context.Context, uid string, conn *models.Connection) error
	Get(ctx context.Context, uid, connectionID string) (*models.Connection, error)
	List(ctx context.Context, uid string) ([]*models.Connection, error)
	Update(ctx context.Context, uid, connectionID string, fn func(*models.Connection) error) (*models.Connection, error)
}

type providerCatalog interface {
	Require(id string) (providers.Adapter, error)
	List() []dto.ProviderMetadata
}

type configCipher interface {
	EncryptConfig(ctx context.Context, cfg map[string]string) (string, error)
	DecryptConfig(ctx context.Context, blob string) (map[string]string, error)
}

type connectionService struct {
	store     connectionCSStore
	catalog   providerCatalog
	cipher    configCipher
	requester syncRequester
}

func NewConnectionService(store connectionCSStore, catalog providerCatalog, cipher configCipher, requester syncRequester) *connectionService {
	return &connectionService{
		store:     store,
		catalog:   catalog,
		cipher:    cipher,
		requester: requester,
	}
}

func (s *connectionService) Providers() []dto.ProviderMetadata {
	return s.catalog.List()
}

// Create stores a Pending connection and starts linking it with the provider.
func (s *connectionService) Create(ctx context.Context, uid string, req dto.CreateConnectionRequest) (dto.CreateConnectionResult, error) {
	adapter, err := s.catalog.Require(strings.TrimSpace(req.ProviderID))
	if err != nil {
		return dto.CreateConnectionResult{}, err
	}
	meta := adapter.Metadata()

	blob, err := s.cipher.EncryptConfig(ctx, req.Config)
	if err != nil {
		return dto.CreateConnectionResult{}, err
	}

	conn := &models.Connection{
		ProviderID:      meta.ID,
		DisplayName:     helpers.FirstNonBlank(strings.TrimSpace(req.DisplayName), meta.Name),
		Type:            meta.Type,
		Status:          models.ConnectionPending,
		AutoSync:        helpers.ValueOr(req.AutoSync, true),
		EncryptedConfig: blob,
		SyncStatus:      models.SyncIdle,
	}
	if err := s.store.Create(ctx, uid, conn); err != nil {
		return dto.CreateConnectionResult{}, err
	}

	log, ctx := logger.With(ctx, "connection_id", conn.ConnectionID, "provider", conn.ProviderID)
	log.Info("connection created")

	res, updated, err := s.initiate(ctx, adapter, conn, req.Config)
	if err != nil {
		return dto.CreateConnectionResult{}, err
	}
	return dto.CreateConnectionResult{Connection: updated, Connect: res}, nil
}

func (s *connectionService) List(ctx context.Context, uid string) ([]*models.Connection, error) {
	return s.store.List(ctx, uid)
}

func (s *connectionService) Get(ctx context.Context, uid, connectionID string) (*models.Connection, error) {
	return s.store.Get(ctx, uid, connectionID)
}

// Update changes the display name, auto-sync flag or config. New config keys
// are merged over the stored ones; a Pending connection is re-initiated with
// the merged config so a link can be completed.
func (s *connectionService) Update(ctx context.Context, uid, connectionID string, req dto.UpdateConnectionRequest) (dto.CreateConnectionResult, error) {
	conn, err := s.store.Get(ctx, uid, connectionID)
	if err != nil {
		return dto.CreateConnectionResult{}, err
	}
	if conn.Status == models.ConnectionDisabled {
		return dto.CreateConnectionResult{}, errs.NewValidationError("connection is disabled")
	}
	if req.DisplayName != nil && strings.TrimSpace(*req.DisplayName) == "" {
		return dto.CreateConnectionResult{}, errs.NewValidationError("displayName must not be blank")
	}

	var blob *string
	var merged map[string]string
	if len(req.Config) > 0 {
		merged, err = s.cipher.DecryptConfig(ctx, conn.EncryptedConfig)
		if err != nil {
			return dto.CreateConnectionResult{}, err
		}
		maps.Copy(merged, req.Config)
		enc, err := s.cipher.EncryptConfig(ctx, merged)
		if err != nil {
			return dto.CreateConnectionResult{}, err
		}
		blob = &enc
	}

	updated, err := s.store.Update(ctx, uid, connectionID, func(c *models.Connection) error {
		if req.DisplayName != nil {
			c.DisplayName = strings.TrimSpace(*req.DisplayName)
		}
		if req.AutoSync != nil {
			c.AutoSync = *req.AutoSync
		}
		if blob != nil {
			c.EncryptedConfig = *blob
		}
		return nil
	})
	if err != nil {
		return dto.CreateConnectionResult{}, err
	}

	out := dto.CreateConnectionResult{Connection: updated}
	if merged != nil && updated.Status == models.ConnectionPending {
		adapter, err := s.catalog.Require(updated.ProviderID)
		if err != nil {
			return out, err
		}
		out.Connect, out.Connection, err = s.initiate(ctx, adapter, updated, merged)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// Disable is the soft delete. Transactions stay; the connection never syncs
// again and upstream credentials are released where the provider holds any.
func (s *connectionService) Disable(ctx context.Context, uid, connectionID string) error {
	already := false
	conn, err := s.store.Update(ctx, uid, connectionID, func(c *models.Connection) error {
		if c.Status == models.ConnectionDisabled {
			already = true
			return errs.ErrNoChange
		}
		c.Status = models.ConnectionDisabled
		c.AutoSync = false
		return nil
	})
	if err != nil {
		return err
	}
	if already {
		return nil
	}
	log := logger.FromContext(ctx)
	log.Info("connection disabled", "connection_id", connectionID)

	adapter, err := s.catalog.Require(conn.ProviderID)
	if err != nil {
		log.Warn("provider disconnect skipped, provider not registered",
			"connection_id", connectionID, "provider", conn.ProviderID, "error", err)
		return nil
	}
	if d, ok := adapter.(providers.Disconnecter); ok {
		if err := d.Disconnect(ctx, conn); err != nil {
			log.Warn("provider disconnect failed", "connection_id", connectionID, "error", err)
		}
	}
	return nil
}

// RequestSync queues a sync on behalf of the user. False means it was not
// started, e.g. because one is already running or a backoff is active.
func (s *connectionService) RequestSync(ctx context.Context, uid, connectionID string) (bool, *models.Connection, error) {
	conn, err := s.store.Get(ctx, uid, connectionID)
	if err != nil {
		return false, nil, err
	}
	switch conn.Status {
	case models.ConnectionDisabled:
		return false, nil, errs.NewValidationError("connection is disabled")
	case models.ConnectionPending:
		return false, nil, errs.NewValidationError("connection is not linked yet")
	}

	ok, err := s.requester.Request(ctx, uid, connectionID)
	if err != nil {
		return false, nil, err
	}
	conn, err = s.store.Get(ctx, uid, connectionID)
	if err != nil {
		return ok, nil, err
	}
	return ok, conn, nil
}

func (s *connectionService) initiate(ctx context.Context, adapter providers.Adapter, conn *models.Connection, cfg map[string]string) (dto.ConnectResult, *models.Connection, error) {
	log := logger.FromContext(ctx)

	res, initErr := adapter.Initiate(ctx, conn, cfg)

	var blob *string
	if initErr == nil && res.Config != nil {
		enc, err := s.cipher.EncryptConfig(ctx, res.Config)
		if err != nil {
			return res, conn, err
		}
		blob = &enc
	}

	updated, err := s.store.Update(ctx, conn.UID, conn.ConnectionID, func(c *models.Connection) error {
		if initErr != nil {
			c.Status = models.ConnectionError
			c.ErrorMessage = initErr.Error()
			c.LastFailureKind = string(errs.FailureFatal)
			return nil
		}
		if res.Status != "" {
			c.Status = res.Status
		}
		if res.ExternalID != "" {
			c.ExternalID = res.ExternalID
		}
		if blob != nil {
			c.EncryptedConfig = *blob
		}
		if c.Status == models.ConnectionActive {
			c.ErrorMessage = ""
			c.LastFailureKind = ""
		}
		return nil
	})
	if err != nil {
		return res, conn, err
	}
	if initErr != nil {
		log.Warn("connection initiation failed", "error", initErr)
		return res, updated, initErr
	}
	log.Info("connection initiated", "status", updated.Status)
	return res, updated, nil
}
