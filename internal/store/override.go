package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
)

type overrideStore struct {
	client *firestore.Client
}

func NewOverrideStore(client *firestore.Client) *overrideStore {
	return &overrideStore{client: client}
}

// OverrideDocID keys a rule by (matchType, normalized value).
func OverrideDocID(matchType models.MatchType, matchValue string) string {
	return uuid.NewSHA1(docNamespace, []byte("override:"+string(matchType)+":"+matchValue)).String()
}

func (s *overrideStore) collection(uid string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).Collection("category_overrides")
}

func (s *overrideStore) List(ctx context.Context, uid string) ([]models.CategoryOverride, error) {
	docs, err := s.collection(uid).Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapErr(err, "read", "category overrides")
	}
	out := make([]models.CategoryOverride, 0, len(docs))
	for _, d := range docs {
		var o models.CategoryOverride
		if err := d.DataTo(&o); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse category override", err)
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *overrideStore) Get(ctx context.Context, uid, overrideID string) (*models.CategoryOverride, error) {
	doc, err := s.collection(uid).Doc(overrideID).Get(ctx)
	if err != nil {
		return nil, wrapErr(err, "read", "category override")
	}
	var o models.CategoryOverride
	if err := doc.DataTo(&o); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse category override", err)
	}
	return &o, nil
}

// Upsert stores the rule under its derived id. An existing rule for the same
// (matchType, matchValue) keeps its createdAt and is touched.
func (s *overrideStore) Upsert(ctx context.Context, uid string, o *models.CategoryOverride) error {
	o.OverrideID = OverrideDocID(o.MatchType, o.MatchValue)
	ref := s.collection(uid).Doc(o.OverrideID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now()
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			o.CreatedAt = now
		case err != nil:
			return err
		default:
			var existing models.CategoryOverride
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			o.CreatedAt = existing.CreatedAt
		}
		o.UpdatedAt = now
		return tx.Set(ref, o)
	})
	return wrapErr(err, "write", "category override")
}

func (s *overrideStore) Delete(ctx context.Context, uid, overrideID string) error {
	_, err := s.collection(uid).Doc(overrideID).Delete(ctx, firestore.Exists)
	return wrapErr(err, "delete", "category override")
}
