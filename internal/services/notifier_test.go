package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/helpers"
)

type notifyFakeOutbox struct {
	sent []models.MailMessage
	err  error
}

func (f *notifyFakeOutbox) Enqueue(_ context.Context, msg models.MailMessage) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func TestNotifySyncFailure(t *testing.T) {
	outbox := &notifyFakeOutbox{}
	users := &stubUserStore{user: &models.User{UID: "uid-1", Email: "jane@example.com"}}
	n := NewMailNotifier(outbox, users, "Finance Sync")

	n.NotifySyncFailure(helpers.TestCtx(), &models.Connection{UID: "uid-1", DisplayName: "KBC"}, "ITEM_LOGIN_REQUIRED: login again")

	if len(outbox.sent) != 1 {
		t.Fatalf("expected one mail, got %d", len(outbox.sent))
	}
	msg := outbox.sent[0]
	if msg.To[0] != "jane@example.com" || msg.Message.Subject != "Sync problem at KBC" {
		t.Fatalf("unexpected mail: %+v", msg)
	}
	if !strings.Contains(msg.Message.Text, "KBC") || !strings.Contains(msg.Message.Text, "ITEM_LOGIN_REQUIRED") {
		t.Fatalf("body should name the connection and the error: %q", msg.Message.Text)
	}
}

func TestNotifySyncFailureSkips(t *testing.T) {
	tests := []struct {
		name  string
		users *stubUserStore
	}{
		{name: "no email", users: &stubUserStore{user: &models.User{UID: "uid-1"}}},
		{name: "muted", users: &stubUserStore{user: &models.User{UID: "uid-1", Email: "a@b.c", MuteSyncAlerts: true}}},
		{name: "lookup failed", users: &stubUserStore{getErr: errors.New("down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outbox := &notifyFakeOutbox{}
			n := NewMailNotifier(outbox, tt.users, "Finance Sync")
			n.NotifySyncFailure(helpers.TestCtx(), &models.Connection{UID: "uid-1", ProviderID: "plaid"}, "boom")
			if len(outbox.sent) != 0 {
				t.Fatalf("expected no mail")
			}
		})
	}
}

func TestNotifySyncFailureOutboxErrorIsSwallowed(t *testing.T) {
	outbox := &notifyFakeOutbox{err: errors.New("write failed")}
	users := &stubUserStore{user: &models.User{UID: "uid-1", Email: "a@b.c"}}
	n := NewMailNotifier(outbox, users, "Finance Sync")

	n.NotifySyncFailure(helpers.TestCtx(), &models.Connection{UID: "uid-1"}, "boom")
	if len(outbox.sent) != 1 {
		t.Fatalf("expected an attempt")
	}
}
