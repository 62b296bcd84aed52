package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
)

type fakeConnectionSvc struct {
	created    dto.CreateConnectionRequest
	updated    dto.UpdateConnectionRequest
	disabledID string
	started    bool
	err        error
	gotUID     string
	gotID      string
}

func (f *fakeConnectionSvc) Providers() []dto.ProviderMetadata {
	return []dto.ProviderMetadata{{ID: "manual", Name: "Manual"}, {ID: "plaid", Name: "Plaid"}}
}

func (f *fakeConnectionSvc) Create(_ context.Context, uid string, req dto.CreateConnectionRequest) (dto.CreateConnectionResult, error) {
	f.gotUID = uid
	f.created = req
	return dto.CreateConnectionResult{
		Connection: &models.Connection{ConnectionID: "c1", ProviderID: req.ProviderID, Status: models.ConnectionPending},
		Connect:    dto.ConnectResult{Status: models.ConnectionPending, LinkToken: "link-1"},
	}, f.err
}

func (f *fakeConnectionSvc) List(context.Context, string) ([]*models.Connection, error) {
	return []*models.Connection{{ConnectionID: "c1"}}, f.err
}

func (f *fakeConnectionSvc) Get(_ context.Context, _, id string) (*models.Connection, error) {
	f.gotID = id
	if f.err != nil {
		return nil, f.err
	}
	return &models.Connection{ConnectionID: id}, nil
}

func (f *fakeConnectionSvc) Update(_ context.Context, _, id string, req dto.UpdateConnectionRequest) (dto.CreateConnectionResult, error) {
	f.gotID = id
	f.updated = req
	return dto.CreateConnectionResult{Connection: &models.Connection{ConnectionID: id}}, f.err
}

func (f *fakeConnectionSvc) Disable(_ context.Context, _, id string) error {
	f.disabledID = id
	return f.err
}

func (f *fakeConnectionSvc) RequestSync(_ context.Context, _, id string) (bool, *models.Connection, error) {
	f.gotID = id
	return f.started, &models.Connection{ConnectionID: id, SyncStatus: models.SyncRunning}, f.err
}

func newTestConnectionHandlers(svc *fakeConnectionSvc) *connectionHandlers {
	return NewConnectionHandlers(&Deps{ResponseHandler: testResponseHandler(), ConnectionSvc: svc})
}

func TestListProviders(t *testing.T) {
	h := newTestConnectionHandlers(&fakeConnectionSvc{})

	rr := serve(t, h.ProviderRoutes(), http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got []dto.ProviderMetadata
	decodeData(t, rr, &got)
	if len(got) != 2 || got[1].ID != "plaid" {
		t.Fatalf("unexpected providers: %+v", got)
	}
}

func TestCreateConnectionHandler(t *testing.T) {
	svc := &fakeConnectionSvc{}
	h := newTestConnectionHandlers(svc)

	rr := serve(t, h.ConnectionRoutes(), http.MethodPost, "/", `{"providerId":"plaid","displayName":"KBC","config":{"region":"BE"}}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d", rr.Code)
	}
	if svc.gotUID != "uid-123" || svc.created.ProviderID != "plaid" || svc.created.Config["region"] != "BE" {
		t.Fatalf("service got %q %+v", svc.gotUID, svc.created)
	}
	var got dto.CreateConnectionResult
	decodeData(t, rr, &got)
	if got.Connect.LinkToken != "link-1" {
		t.Fatalf("link token missing: %+v", got)
	}
}

func TestCreateConnectionBadJSON(t *testing.T) {
	h := newTestConnectionHandlers(&fakeConnectionSvc{})

	rr := serve(t, h.ConnectionRoutes(), http.MethodPost, "/", `{"providerId":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestGetConnectionNotFound(t *testing.T) {
	svc := &fakeConnectionSvc{err: errs.NewNotFoundError("connection not found")}
	h := newTestConnectionHandlers(svc)

	rr := serve(t, h.ConnectionRoutes(), http.MethodGet, "/c9", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if svc.gotID != "c9" {
		t.Fatalf("connection id = %q", svc.gotID)
	}
}

func TestUpdateAndDisableConnection(t *testing.T) {
	svc := &fakeConnectionSvc{}
	h := newTestConnectionHandlers(svc)
	routes := h.ConnectionRoutes()

	rr := serve(t, routes, http.MethodPatch, "/c1", `{"autoSync":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status = %d", rr.Code)
	}
	if svc.updated.AutoSync == nil || *svc.updated.AutoSync {
		t.Fatalf("autoSync not forwarded: %+v", svc.updated)
	}

	rr = serve(t, routes, http.MethodDelete, "/c1", "")
	if rr.Code != http.StatusOK || svc.disabledID != "c1" {
		t.Fatalf("delete status = %d id = %q", rr.Code, svc.disabledID)
	}
}

func TestRequestSyncHandler(t *testing.T) {
	cases := []struct {
		name    string
		started bool
		status  int
	}{
		{"queued", true, http.StatusAccepted},
		{"busy", false, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestConnectionHandlers(&fakeConnectionSvc{started: tc.started})

			rr := serve(t, h.ConnectionRoutes(), http.MethodPost, "/c1/sync", "")
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
			var got dto.SyncRequestResult
			decodeData(t, rr, &got)
			if got.Started != tc.started || got.Connection == nil || got.Connection.ConnectionID != "c1" {
				t.Fatalf("unexpected body: %+v", got)
			}
		})
	}
}

func TestRequestSyncRejected(t *testing.T) {
	h := newTestConnectionHandlers(&fakeConnectionSvc{err: errs.NewValidationError("connection is disabled")})

	rr := serve(t, h.ConnectionRoutes(), http.MethodPost, "/c1/sync", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}
