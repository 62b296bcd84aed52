package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/middleware"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/internal/response"
)

type connectionService interface {
	Providers() []dto.ProviderMetadata
	Create(ctx context.Context, uid string, req dto.CreateConnectionRequest) (dto.CreateConnectionResult, error)
	List(ctx context.Context, uid string) ([]*models.Connection, error)
	Get(ctx context.Context, uid, connectionID string) (*models.Connection, error)
	Update(ctx context.Context, uid, connectionID string, req dto.UpdateConnectionRequest) (dto.CreateConnectionResult, error)
	Disable(ctx context.Context, uid, connectionID string) error
	RequestSync(ctx context.Context, uid, connectionID string) (bool, *models.Connection, error)
}

type connectionHandlers struct {
	ResponseHandler response.ResponseHandler
	ConnectionSvc   connectionService
}

func NewConnectionHandlers(deps *Deps) *connectionHandlers {
	return &connectionHandlers{
		ResponseHandler: deps.ResponseHandler,
		ConnectionSvc:   deps.ConnectionSvc,
	}
}

func (h *connectionHandlers) ProviderRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListProviders)
	return r
}

func (h *connectionHandlers) ConnectionRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListConnections)
	r.Post("/", h.CreateConnection)
	r.Route("/{connectionId}", func(r chi.Router) {
		r.Get("/", h.GetConnection)
		r.Patch("/", h.UpdateConnection)
		r.Delete("/", h.DisableConnection)
		r.Post("/sync", h.RequestSync)
	})
	return r
}

func (h *connectionHandlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, h.ConnectionSvc.Providers())
}

func (h *connectionHandlers) ListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.ConnectionSvc.List(r.Context(), middleware.UID(r.Context()))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, conns)
}

func (h *connectionHandlers) CreateConnection(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	res, err := h.ConnectionSvc.Create(r.Context(), middleware.UID(r.Context()), req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, res)
}

func (h *connectionHandlers) GetConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.ConnectionSvc.Get(r.Context(), middleware.UID(r.Context()), chi.URLParam(r, "connectionId"))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, conn)
}

func (h *connectionHandlers) UpdateConnection(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	res, err := h.ConnectionSvc.Update(r.Context(), middleware.UID(r.Context()), chi.URLParam(r, "connectionId"), req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, res)
}

func (h *connectionHandlers) DisableConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.ConnectionSvc.Disable(r.Context(), middleware.UID(r.Context()), chi.URLParam(r, "connectionId")); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}

// RequestSync answers 202 when a run was queued and 200 with started=false
// when the connection is busy or backing off.
func (h *connectionHandlers) RequestSync(w http.ResponseWriter, r *http.Request) {
	started, conn, err := h.ConnectionSvc.RequestSync(r.Context(), middleware.UID(r.Context()), chi.URLParam(r, "connectionId"))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	h.ResponseHandler.WriteSuccess(w, r, status, dto.SyncRequestResult{Started: started, Connection: conn})
}
