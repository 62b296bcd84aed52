package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GregMSThompson/finance-sync/internal/handlers"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

func TestHealthzIsUnauthenticated(t *testing.T) {
	deps := &handlers.Deps{Log: logger.New("debug", logger.NewTestHandler)}
	r := NewRouter(deps)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthRouterServesOnlyHealthz(t *testing.T) {
	r := NewHealthRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/connections", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
