package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
)

type categoryStore struct {
	client *firestore.Client
}

func NewCategoryStore(client *firestore.Client) *categoryStore {
	return &categoryStore{client: client}
}

func (s *categoryStore) collection(uid string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).Collection("categories")
}

func (s *categoryStore) List(ctx context.Context, uid string) ([]models.Category, error) {
	docs, err := s.collection(uid).OrderBy("name", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, wrapErr(err, "read", "categories")
	}
	out := make([]models.Category, 0, len(docs))
	for _, d := range docs {
		var c models.Category
		if err := d.DataTo(&c); err != nil {
			return nil, errs.NewDatabaseError("read", "failed to parse category", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// ListNames returns the user's own category vocabulary, possibly empty.
func (s *categoryStore) ListNames(ctx context.Context, uid string) ([]string, error) {
	categories, err := s.List(ctx, uid)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return names, nil
}

func (s *categoryStore) Get(ctx context.Context, uid, categoryID string) (*models.Category, error) {
	doc, err := s.collection(uid).Doc(categoryID).Get(ctx)
	if err != nil {
		return nil, wrapErr(err, "read", "category")
	}
	var c models.Category
	if err := doc.DataTo(&c); err != nil {
		return nil, errs.NewDatabaseError("read", "failed to parse category", err)
	}
	return &c, nil
}

// CreateBatch stores new categories under fresh ids.
func (s *categoryStore) CreateBatch(ctx context.Context, uid string, categories []*models.Category) error {
	if len(categories) == 0 {
		return nil
	}

	bw := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(categories))
	now := time.Now()

	for _, c := range categories {
		if c.CategoryID == "" {
			c.CategoryID = uuid.NewString()
		}
		c.CreatedAt = now
		c.UpdatedAt = now

		job, err := bw.Create(s.collection(uid).Doc(c.CategoryID), c)
		if err != nil {
			bw.End()
			return errs.NewDatabaseError("create", "failed to queue category", err)
		}
		jobs = append(jobs, job)
	}

	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return wrapErr(err, "create", "category")
		}
	}
	return nil
}

func (s *categoryStore) Rename(ctx context.Context, uid, categoryID, name string) error {
	_, err := s.collection(uid).Doc(categoryID).Update(ctx, []firestore.Update{
		{Path: "name", Value: name},
		{Path: "updatedAt", Value: time.Now()},
	})
	return wrapErr(err, "update", "category")
}

func (s *categoryStore) Delete(ctx context.Context, uid, categoryID string) error {
	_, err := s.collection(uid).Doc(categoryID).Delete(ctx, firestore.Exists)
	return wrapErr(err, "delete", "category")
}
