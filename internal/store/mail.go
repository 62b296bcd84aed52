package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/GregMSThompson/finance-sync/internal/models"
)

// mailStore is an outbox collection drained by the Trigger Email extension.
type mailStore struct {
	collection *firestore.CollectionRef
}

func NewMailStore(client *firestore.Client, collection string) *mailStore {
	return &mailStore{collection: client.Collection(collection)}
}

func (s *mailStore) Enqueue(ctx context.Context, msg models.MailMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	_, _, err := s.collection.Add(ctx, msg)
	return wrapErr(err, "create", "mail message")
}
