package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
)

type userStore struct {
	Client     *firestore.Client
	Collection *firestore.CollectionRef
}

func NewUserStore(client *firestore.Client) *userStore {
	return &userStore{
		Client:     client,
		Collection: client.Collection("users"),
	}
}

func (us *userStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := us.Collection.Doc(user.UID).Create(ctx, user)
	return wrapErr(err, "create", "user")
}

// UpdateUser merges fields into an existing user document.
func (us *userStore) UpdateUser(ctx context.Context, uid string, fields map[string]any) error {
	fields["updatedAt"] = time.Now()
	_, err := us.Collection.Doc(uid).Set(ctx, fields, firestore.MergeAll)
	return wrapErr(err, "update", "user")
}

func (us *userStore) GetUser(ctx context.Context, uid string) (*models.User, error) {
	doc, err := us.Collection.Doc(uid).Get(ctx)
	if err != nil {
		return nil, wrapErr(err, "read", "user")
	}
	var user models.User
	if err := doc.DataTo(&user); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse user", err)
	}
	return &user, nil
}
