package store

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
)

type accountStore struct {
	client *firestore.Client
}

func NewAccountStore(client *firestore.Client) *accountStore {
	return &accountStore{client: client}
}

func (s *accountStore) collection(uid string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).Collection("accounts")
}

func (s *accountStore) List(ctx context.Context, uid string) ([]models.Account, error) {
	docs, err := s.collection(uid).Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapErr(err, "read", "accounts")
	}
	out := make([]models.Account, 0, len(docs))
	for _, d := range docs {
		var a models.Account
		if err := d.DataTo(&a); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse account", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *accountStore) Get(ctx context.Context, uid, accountID string) (*models.Account, error) {
	doc, err := s.collection(uid).Doc(accountID).Get(ctx)
	if err != nil {
		return nil, wrapErr(err, "read", "account")
	}
	var a models.Account
	if err := doc.DataTo(&a); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse account", err)
	}
	return &a, nil
}

// Create stores a new account under a fresh id.
func (s *accountStore) Create(ctx context.Context, uid string, a *models.Account) error {
	now := time.Now()
	if a.AccountID == "" {
		a.AccountID = uuid.NewString()
	}
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.collection(uid).Doc(a.AccountID).Create(ctx, a)
	return wrapErr(err, "create", "account")
}

// Update applies fn inside a transaction. Returning errs.ErrNoChange from fn
// skips the write.
func (s *accountStore) Update(ctx context.Context, uid, accountID string, fn func(*models.Account) error) (*models.Account, error) {
	ref := s.collection(uid).Doc(accountID)
	var out models.Account

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var a models.Account
		if err := snap.DataTo(&a); err != nil {
			return err
		}
		if err := fn(&a); err != nil {
			if errors.Is(err, errs.ErrNoChange) {
				out = a
				return nil
			}
			return err
		}
		a.UpdatedAt = time.Now()
		out = a
		return tx.Set(ref, &a)
	})
	if err != nil {
		if isTyped(err) {
			return nil, err
		}
		return nil, wrapErr(err, "update", "account")
	}
	return &out, nil
}

func (s *accountStore) Delete(ctx context.Context, uid, accountID string) error {
	_, err := s.collection(uid).Doc(accountID).Delete(ctx, firestore.Exists)
	return wrapErr(err, "delete", "account")
}

// UpsertBatch merges accounts by id; fields the upstream stopped sending are kept.
func (s *accountStore) UpsertBatch(ctx context.Context, uid string, accounts []models.Account) error {
	if len(accounts) == 0 {
		return nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(accounts))
	now := time.Now()

	for _, a := range accounts {
		data := map[string]interface{}{
			"accountId":    a.AccountID,
			"connectionId": a.ConnectionID,
			"name":         a.Name,
			"type":         a.Type,
			"updatedAt":    now,
		}
		if a.IBAN != "" {
			data["iban"] = a.IBAN
		}
		if a.AccountNumber != "" {
			data["accountNumber"] = a.AccountNumber
		}
		if a.Currency != "" {
			data["currency"] = a.Currency
		}

		job, err := bw.Set(s.collection(uid).Doc(a.AccountID), data, firestore.MergeAll)
		if err != nil {
			bw.End()
			return errs.NewDatabaseError("write", "failed to queue account", err)
		}
		jobs = append(jobs, job)
	}

	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return errs.NewDatabaseError("write", "failed to write accounts", err)
		}
	}
	return nil
}
