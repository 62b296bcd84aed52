package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/helpers"
)

type stubUserStore struct {
	user            *models.User
	createUserCalls int
	updates         []map[string]any
	err             error
	getErr          error
}

func (s *stubUserStore) CreateUser(_ context.Context, user *models.User) error {
	s.user = user
	s.createUserCalls++
	return s.err
}

func (s *stubUserStore) UpdateUser(_ context.Context, _ string, fields map[string]any) error {
	s.updates = append(s.updates, fields)
	if muted, ok := fields["muteSyncAlerts"].(bool); ok && s.user != nil {
		s.user.MuteSyncAlerts = muted
	}
	return s.err
}

func (s *stubUserStore) GetUser(_ context.Context, _ string) (*models.User, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.user, nil
}

func TestUserServiceCreateUser(t *testing.T) {
	store := &stubUserStore{}
	svc := NewUserService(store)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.clockNow = func() time.Time { return now }

	err := svc.CreateUser(helpers.TestCtx(), "uid-123", " user@example.com ", "Jane", "Doe")
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if store.createUserCalls != 1 {
		t.Fatalf("CreateUser called %d times, want 1", store.createUserCalls)
	}
	if store.user.UID != "uid-123" || store.user.Email != "user@example.com" {
		t.Fatalf("unexpected user identifiers: %+v", store.user)
	}
	if store.user.FirstName != "Jane" || store.user.LastName != "Doe" {
		t.Fatalf("unexpected user name: %+v", store.user)
	}
	if !store.user.CreatedAt.Equal(now) || !store.user.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps not set from clock: %+v", store.user)
	}
}

func TestUserServiceCreateUserStoreError(t *testing.T) {
	store := &stubUserStore{err: errors.New("store failure")}
	svc := NewUserService(store)

	err := svc.CreateUser(helpers.TestCtx(), "uid-456", "user2@example.com", "John", "Smith")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if store.user == nil || store.user.UID != "uid-456" {
		t.Fatalf("store did not receive expected user payload: %+v", store.user)
	}
}

func TestUserServiceSetSyncAlerts(t *testing.T) {
	store := &stubUserStore{user: &models.User{UID: "uid-1", Email: "a@b.c"}}
	svc := NewUserService(store)

	user, err := svc.SetSyncAlerts(helpers.TestCtx(), "uid-1", true)
	if err != nil {
		t.Fatalf("SetSyncAlerts returned error: %v", err)
	}
	if !user.MuteSyncAlerts {
		t.Fatalf("expected alerts muted")
	}
	if len(store.updates) != 1 || store.updates[0]["muteSyncAlerts"] != true {
		t.Fatalf("unexpected updates: %#v", store.updates)
	}
}

func TestUserServiceSetSyncAlertsUnknownUser(t *testing.T) {
	store := &stubUserStore{getErr: errs.NewNotFoundError("user not found")}
	svc := NewUserService(store)

	_, err := svc.SetSyncAlerts(helpers.TestCtx(), "missing", true)
	var nf *errs.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if len(store.updates) != 0 {
		t.Fatalf("expected no update for unknown user")
	}
}
