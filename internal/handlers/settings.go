package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/middleware"
	"github.com/GregMSThompson/finance-sync/internal/response"
)

type settingsService interface {
	Current(ctx context.Context) (dto.Settings, error)
	Update(ctx context.Context, upd dto.SettingsUpdate) (dto.Settings, error)
}

type settingsHandlers struct {
	ResponseHandler response.ResponseHandler
	SettingsSvc     settingsService
}

func NewSettingsHandlers(deps *Deps) *settingsHandlers {
	return &settingsHandlers{
		ResponseHandler: deps.ResponseHandler,
		SettingsSvc:     deps.SettingsSvc,
	}
}

func (h *settingsHandlers) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequireAdmin)
	r.Get("/settings", h.GetSettings)
	r.Patch("/settings", h.UpdateSettings)
	return r
}

func (h *settingsHandlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.SettingsSvc.Current(r.Context())
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, settings)
}

func (h *settingsHandlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var upd dto.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	settings, err := h.SettingsSvc.Update(r.Context(), upd)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, settings)
}
