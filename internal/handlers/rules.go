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

type overrideService interface {
	List(ctx context.Context, uid string) ([]models.CategoryOverride, error)
	Create(ctx context.Context, uid string, req dto.OverrideRequest) (dto.OverrideResult, error)
	Update(ctx context.Context, uid, overrideID string, req dto.OverrideRequest) (dto.OverrideResult, error)
	Delete(ctx context.Context, uid, overrideID string) error
	ApplyToHistory(ctx context.Context, uid, overrideID string) (int, error)
}

type ruleHandlers struct {
	ResponseHandler response.ResponseHandler
	OverrideSvc     overrideService
}

func NewRuleHandlers(deps *Deps) *ruleHandlers {
	return &ruleHandlers{
		ResponseHandler: deps.ResponseHandler,
		OverrideSvc:     deps.OverrideSvc,
	}
}

func (h *ruleHandlers) RuleRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListRules)
	r.Post("/", h.CreateRule)
	r.Patch("/{ruleId}", h.UpdateRule)
	r.Delete("/{ruleId}", h.DeleteRule)
	r.Post("/{ruleId}/apply", h.ApplyRule)
	return r
}

func (h *ruleHandlers) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.OverrideSvc.List(r.Context(), middleware.UID(r.Context()))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, rules)
}

func (h *ruleHandlers) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req dto.OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	res, err := h.OverrideSvc.Create(r.Context(), middleware.UID(r.Context()), req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, res)
}

func (h *ruleHandlers) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var req dto.OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	res, err := h.OverrideSvc.Update(r.Context(), middleware.UID(r.Context()), chi.URLParam(r, "ruleId"), req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, res)
}

func (h *ruleHandlers) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.OverrideSvc.Delete(r.Context(), middleware.UID(r.Context()), chi.URLParam(r, "ruleId")); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, nil)
}

func (h *ruleHandlers) ApplyRule(w http.ResponseWriter, r *http.Request) {
	applied, err := h.OverrideSvc.ApplyToHistory(r.Context(), middleware.UID(r.Context()), chi.URLParam(r, "ruleId"))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, map[string]int{"applied": applied})
}
