package store

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
)

type settingsStore struct {
	client *firestore.Client
}

func NewSettingsStore(client *firestore.Client) *settingsStore {
	return &settingsStore{client: client}
}

func (s *settingsStore) doc() *firestore.DocumentRef {
	return s.client.Collection("settings").Doc("app")
}

// Get returns the stored settings, or an empty document when none exists yet.
func (s *settingsStore) Get(ctx context.Context) (*models.Settings, error) {
	snap, err := s.doc().Get(ctx)
	if status.Code(err) == codes.NotFound {
		return &models.Settings{}, nil
	}
	if err != nil {
		return nil, wrapErr(err, "read", "settings")
	}
	var out models.Settings
	if err := snap.DataTo(&out); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse settings", err)
	}
	return &out, nil
}

// Update is a transactional read-modify-write of the settings document.
func (s *settingsStore) Update(ctx context.Context, fn func(*models.Settings) error) (*models.Settings, error) {
	ref := s.doc()
	var out models.Settings

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var cur models.Settings
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&cur); err != nil {
				return err
			}
		}
		if err := fn(&cur); err != nil {
			if errors.Is(err, errs.ErrNoChange) {
				out = cur
				return nil
			}
			return err
		}
		cur.UpdatedAt = time.Now()
		out = cur
		return tx.Set(ref, &cur)
	})
	if err != nil {
		return nil, wrapErr(err, "update", "settings")
	}
	return &out, nil
}
