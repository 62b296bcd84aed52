package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
)

type transactionStore struct {
	client *firestore.Client
}

func NewTransactionStore(client *firestore.Client) *transactionStore {
	return &transactionStore{client: client}
}

// TransactionDocID derives the document id from (accountID, externalID), so
// the pair is unique by construction.
func TransactionDocID(accountID, externalID string) string {
	return uuid.NewSHA1(docNamespace, []byte("tx:"+accountID+":"+externalID)).String()
}

func (s *transactionStore) txCollection(uid string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).Collection("transactions")
}

func (s *transactionStore) cursorDoc(uid, connectionID string) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(uid).Collection("sync_cursors").Doc(connectionID)
}

func (s *transactionStore) Get(ctx context.Context, uid, transactionID string) (*models.Transaction, error) {
	doc, err := s.txCollection(uid).Doc(transactionID).Get(ctx)
	if err != nil {
		return nil, wrapErr(err, "read", "transaction")
	}
	var t models.Transaction
	if err := doc.DataTo(&t); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse transaction", err)
	}
	return &t, nil
}

func (s *transactionStore) FindByExternalID(ctx context.Context, uid, accountID, externalID string) (*models.Transaction, error) {
	return s.Get(ctx, uid, TransactionDocID(accountID, externalID))
}

// Save writes the full document. New transactions get their derived id.
func (s *transactionStore) Save(ctx context.Context, uid string, t *models.Transaction) error {
	now := time.Now()
	if t.TransactionID == "" {
		t.TransactionID = TransactionDocID(t.AccountID, t.ExternalID)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := s.txCollection(uid).Doc(t.TransactionID).Set(ctx, t)
	return wrapErr(err, "write", "transaction")
}

// UpsertBatch writes many transactions through a BulkWriter.
func (s *transactionStore) UpsertBatch(ctx context.Context, uid string, txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(txs))
	now := time.Now()

	for _, t := range txs {
		t.UpdatedAt = now
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		if t.TransactionID == "" {
			t.TransactionID = TransactionDocID(t.AccountID, t.ExternalID)
		}

		job, err := bw.Set(s.txCollection(uid).Doc(t.TransactionID), t)
		if err != nil {
			bw.End()
			return errs.NewDatabaseError("write", "failed to queue transaction", err)
		}
		jobs = append(jobs, job)
	}

	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return errs.NewDatabaseError("write", "failed to write transaction batch", err)
		}
	}
	return nil
}

func (s *transactionStore) List(ctx context.Context, uid string, q dto.TransactionQuery) ([]*models.Transaction, error) {
	query := s.txCollection(uid).Query
	if q.AccountID != nil {
		query = query.Where("accountId", "==", *q.AccountID)
	}
	if q.Category != nil {
		query = query.Where("category", "==", *q.Category)
	}
	if q.DateFrom != nil {
		query = query.Where("bookingDate", ">=", *q.DateFrom)
	}
	if q.DateTo != nil {
		query = query.Where("bookingDate", "<=", *q.DateTo)
	}
	query = query.OrderBy("bookingDate", firestore.Desc)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var out []*models.Transaction
	err := s.iterate(query.Documents(ctx), func(t *models.Transaction) error {
		out = append(out, t)
		return nil
	})
	return out, err
}

// ForEach streams every transaction of a user to fn, stopping on its first error.
func (s *transactionStore) ForEach(ctx context.Context, uid string, fn func(*models.Transaction) error) error {
	return s.iterate(s.txCollection(uid).Documents(ctx), fn)
}

func (s *transactionStore) iterate(iter *firestore.DocumentIterator, fn func(*models.Transaction) error) error {
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return wrapErr(err, "read", "transactions")
		}
		var t models.Transaction
		if err := doc.DataTo(&t); err != nil {
			return errs.NewDatabaseError("read", "failed to parse transaction", err)
		}
		if err := fn(&t); err != nil {
			return err
		}
	}
}

// DeleteByAccount removes every transaction of one account and returns how
// many were deleted.
func (s *transactionStore) DeleteByAccount(ctx context.Context, uid, accountID string) (int, error) {
	iter := s.txCollection(uid).Where("accountId", "==", accountID).Documents(ctx)
	defer iter.Stop()

	bw := s.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return 0, wrapErr(err, "read", "transactions")
		}
		job, err := bw.Delete(doc.Ref)
		if err != nil {
			bw.End()
			return 0, errs.NewDatabaseError("delete", "failed to queue transaction delete", err)
		}
		jobs = append(jobs, job)
	}

	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return 0, errs.NewDatabaseError("delete", "failed to delete transactions", err)
		}
	}
	return len(jobs), nil
}

// GetCursor returns "" when the connection has never synced.
func (s *transactionStore) GetCursor(ctx context.Context, uid, connectionID string) (string, error) {
	snap, err := s.cursorDoc(uid, connectionID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return "", nil
	}
	if err != nil {
		return "", wrapErr(err, "read", "sync cursor")
	}
	cursor, _ := snap.Data()["cursor"].(string)
	return cursor, nil
}

func (s *transactionStore) SetCursor(ctx context.Context, uid, connectionID, cursor string) error {
	_, err := s.cursorDoc(uid, connectionID).Set(ctx, map[string]interface{}{
		"cursor":    cursor,
		"updatedAt": time.Now(),
	}, firestore.MergeAll)
	return wrapErr(err, "write", "sync cursor")
}
