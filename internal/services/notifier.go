package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

type mailOutbox interface {
	Enqueue(ctx context.Context, msg models.MailMessage) error
}

type notifierUserStore interface {
	GetUser(ctx context.Context, uid string) (*models.User, error)
}

// mailNotifier queues sync alerts in the mail outbox collection.
type mailNotifier struct {
	outbox   mailOutbox
	users    notifierUserStore
	appName  string
	clockNow func() time.Time
}

func NewMailNotifier(outbox mailOutbox, users notifierUserStore, appName string) *mailNotifier {
	return &mailNotifier{
		outbox:   outbox,
		users:    users,
		appName:  appName,
		clockNow: time.Now,
	}
}

// NotifySyncFailure is best effort. Users without an email or with alerts
// muted are skipped.
func (n *mailNotifier) NotifySyncFailure(ctx context.Context, conn *models.Connection, message string) {
	log := logger.FromContext(ctx)

	user, err := n.users.GetUser(ctx, conn.UID)
	if err != nil {
		log.Warn("sync alert skipped, user lookup failed", "error", err)
		return
	}
	if strings.TrimSpace(user.Email) == "" || user.MuteSyncAlerts {
		log.Debug("sync alert skipped", "muted", user.MuteSyncAlerts)
		return
	}

	name := connectionName(conn)
	subject := fmt.Sprintf("Sync problem at %s", name)
	body := fmt.Sprintf("Hi,\n\nThe sync of your connection %q failed.\n\nError: %s\n\nOpen %s to check the connection or sync again.\n",
		name, message, n.appName)

	if err := n.Send(ctx, user.Email, subject, body); err != nil {
		log.Error("failed to queue sync alert", "error", err)
		return
	}
	log.Info("sync alert queued")
}

func (n *mailNotifier) Send(ctx context.Context, to, subject, body string) error {
	return n.outbox.Enqueue(ctx, models.MailMessage{
		To:        []string{to},
		Message:   models.MailContent{Subject: subject, Text: body},
		CreatedAt: n.clockNow(),
	})
}

func connectionName(conn *models.Connection) string {
	if strings.TrimSpace(conn.DisplayName) != "" {
		return conn.DisplayName
	}
	return conn.ProviderID
}
