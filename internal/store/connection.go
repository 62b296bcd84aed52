package store

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
)

type connectionStore struct {
	client   *firestore.Client
	clockNow func() time.Time
}

func NewConnectionStore(client *firestore.Client) *connectionStore {
	return &connectionStore{client: client, clockNow: time.Now}
}

func (s *connectionStore) collection(uid string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).Collection("connections")
}

func (s *connectionStore) Create(ctx context.Context, uid string, conn *models.Connection) error {
	now := s.clockNow()
	if conn.ConnectionID == "" {
		conn.ConnectionID = uuid.NewString()
	}
	conn.UID = uid
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now

	_, err := s.collection(uid).Doc(conn.ConnectionID).Create(ctx, conn)
	return wrapErr(err, "create", "connection")
}

func (s *connectionStore) Get(ctx context.Context, uid, connectionID string) (*models.Connection, error) {
	doc, err := s.collection(uid).Doc(connectionID).Get(ctx)
	if err != nil {
		return nil, wrapErr(err, "read", "connection")
	}
	var c models.Connection
	if err := doc.DataTo(&c); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse connection", err)
	}
	return &c, nil
}

func (s *connectionStore) List(ctx context.Context, uid string) ([]*models.Connection, error) {
	return s.collect(s.collection(uid).OrderBy("createdAt", firestore.Asc).Documents(ctx))
}

// ListSchedulable returns auto-sync connections of every user that the
// scheduler may pick up (active, or errored and possibly retryable).
func (s *connectionStore) ListSchedulable(ctx context.Context) ([]*models.Connection, error) {
	q := s.client.CollectionGroup("connections").
		Where("autoSync", "==", true).
		Where("status", "in", []string{string(models.ConnectionActive), string(models.ConnectionError)})
	return s.collect(q.Documents(ctx))
}

// ListRunning returns connections of every user whose sync is marked running.
func (s *connectionStore) ListRunning(ctx context.Context) ([]*models.Connection, error) {
	q := s.client.CollectionGroup("connections").Where("syncStatus", "==", string(models.SyncRunning))
	return s.collect(q.Documents(ctx))
}

// Update applies fn to the stored connection inside a transaction and writes
// the result in one Set. fn may return errs.ErrNoChange to skip the write.
func (s *connectionStore) Update(ctx context.Context, uid, connectionID string, fn func(*models.Connection) error) (*models.Connection, error) {
	ref := s.collection(uid).Doc(connectionID)
	var out models.Connection

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var c models.Connection
		if err := snap.DataTo(&c); err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			if errors.Is(err, errs.ErrNoChange) {
				out = c
				return nil
			}
			return err
		}
		c.UpdatedAt = s.clockNow()
		out = c
		return tx.Set(ref, &c)
	})
	if err != nil {
		if isTyped(err) {
			return nil, err
		}
		return nil, wrapErr(err, "update", "connection")
	}
	return &out, nil
}

// SetProgress writes only the stage and progress fields.
func (s *connectionStore) SetProgress(ctx context.Context, uid, connectionID, stage string, progress int) error {
	_, err := s.collection(uid).Doc(connectionID).Update(ctx, []firestore.Update{
		{Path: "syncStage", Value: stage},
		{Path: "syncProgress", Value: progress},
	})
	return wrapErr(err, "update", "connection progress")
}

func (s *connectionStore) collect(iter *firestore.DocumentIterator) ([]*models.Connection, error) {
	defer iter.Stop()

	var out []*models.Connection
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, wrapErr(err, "read", "connections")
		}
		var c models.Connection
		if err := doc.DataTo(&c); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse connection", err)
		}
		out = append(out, &c)
	}
	return out, nil
}

// isTyped reports whether err already is one of the errs types, as returned
// from an update callback.
func isTyped(err error) bool {
	var (
		nf  *errs.NotFoundError
		ve  *errs.ValidationError
		ce  *errs.ConfigurationError
		ae  *errs.AlreadyExistsError
		dbe *errs.DatabaseError
	)
	return errors.As(err, &nf) || errors.As(err, &ve) || errors.As(err, &ce) || errors.As(err, &ae) || errors.As(err, &dbe)
}
