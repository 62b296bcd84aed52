package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/middleware"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/internal/response"
)

type transactionService interface {
	List(ctx context.Context, uid string, q dto.TransactionQuery) ([]*models.Transaction, error)
	CreateManual(ctx context.Context, uid string, req dto.CreateTransactionRequest) (*models.Transaction, error)
	UpdateCategory(ctx context.Context, uid, transactionID string, req dto.UpdateCategoryRequest) (*models.Transaction, error)
	RecategorizeAll(ctx context.Context, uid string) (dto.RecategorizeResult, error)
}

type transactionHandlers struct {
	ResponseHandler response.ResponseHandler
	TransactionSvc  transactionService
}

func NewTransactionHandlers(deps *Deps) *transactionHandlers {
	return &transactionHandlers{
		ResponseHandler: deps.ResponseHandler,
		TransactionSvc:  deps.TransactionSvc,
	}
}

func (h *transactionHandlers) TransactionRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListTransactions)
	r.Post("/", h.CreateTransaction)
	r.Post("/recategorize", h.RecategorizeAll)
	r.Patch("/{transactionId}/category", h.UpdateCategory)
	return r
}

func (h *transactionHandlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q, err := parseTransactionQuery(r)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	txs, err := h.TransactionSvc.List(r.Context(), middleware.UID(r.Context()), q)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, txs)
}

func (h *transactionHandlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	tx, err := h.TransactionSvc.CreateManual(r.Context(), middleware.UID(r.Context()), req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusCreated, tx)
}

func (h *transactionHandlers) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}

	tx, err := h.TransactionSvc.UpdateCategory(r.Context(), middleware.UID(r.Context()), chi.URLParam(r, "transactionId"), req)
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, tx)
}

func (h *transactionHandlers) RecategorizeAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.TransactionSvc.RecategorizeAll(r.Context(), middleware.UID(r.Context()))
	if err != nil {
		h.ResponseHandler.HandleError(w, r, err)
		return
	}
	h.ResponseHandler.WriteSuccess(w, r, http.StatusOK, res)
}

func parseTransactionQuery(r *http.Request) (dto.TransactionQuery, error) {
	values := r.URL.Query()
	q := dto.TransactionQuery{
		AccountID: optionalParam(values.Get("accountId")),
		Category:  optionalParam(values.Get("category")),
		DateFrom:  optionalParam(values.Get("from")),
		DateTo:    optionalParam(values.Get("to")),
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return q, errs.NewValidationError("limit must be a non-negative integer")
		}
		q.Limit = limit
	}
	return q, nil
}

func optionalParam(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
