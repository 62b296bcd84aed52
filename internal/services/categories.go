package services

import (
	"context"
	"strings"

	"github.com/GregMSThompson/finance-sync/internal/dto"
	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

type categoryCSStore interface {
	List(ctx context.Context, uid string) ([]models.Category, error)
	Get(ctx context.Context, uid, categoryID string) (*models.Category, error)
	CreateBatch(ctx context.Context, uid string, categories []*models.Category) error
	Rename(ctx context.Context, uid, categoryID, name string) error
	Delete(ctx context.Context, uid, categoryID string) error
}

type vocabularyInvalidator interface {
	InvalidateVocabulary(uid string)
}

// categoryService manages the user's category vocabulary. A user without a
// list is seeded with DefaultCategories on first use, so adding one
// category extends the defaults instead of replacing them.
type categoryService struct {
	store categoryCSStore
	cache vocabularyInvalidator
}

func NewCategoryService(store categoryCSStore, cache vocabularyInvalidator) *categoryService {
	return &categoryService{store: store, cache: cache}
}

func (s *categoryService) List(ctx context.Context, uid string) ([]models.Category, error) {
	categories, err := s.store.List(ctx, uid)
	if err != nil {
		return nil, err
	}
	if len(categories) > 0 {
		return categories, nil
	}
	if err := s.store.CreateBatch(ctx, uid, namedCategories(DefaultCategories)); err != nil {
		return nil, err
	}
	s.cache.InvalidateVocabulary(uid)
	return s.store.List(ctx, uid)
}

func (s *categoryService) Create(ctx context.Context, uid string, req dto.CategoryRequest) (*models.Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errs.NewValidationError("name is required")
	}
	existing, err := s.store.List(ctx, uid)
	if err != nil {
		return nil, err
	}

	var batch []*models.Category
	if len(existing) == 0 {
		batch = namedCategories(DefaultCategories)
		for _, c := range batch {
			existing = append(existing, *c)
		}
	}
	if nameTaken(existing, name, "") {
		return nil, errs.NewAlreadyExistsError("category already exists")
	}
	created := &models.Category{Name: name}
	batch = append(batch, created)

	if err := s.store.CreateBatch(ctx, uid, batch); err != nil {
		return nil, err
	}
	s.cache.InvalidateVocabulary(uid)
	logger.FromContext(ctx).Info("category created", "category_id", created.CategoryID, "seeded", len(batch)-1)
	return created, nil
}

func (s *categoryService) Rename(ctx context.Context, uid, categoryID string, req dto.CategoryRequest) (*models.Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errs.NewValidationError("name is required")
	}
	category, err := s.store.Get(ctx, uid, categoryID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.List(ctx, uid)
	if err != nil {
		return nil, err
	}
	if nameTaken(existing, name, categoryID) {
		return nil, errs.NewAlreadyExistsError("category already exists")
	}
	if category.Name == name {
		return category, nil
	}

	if err := s.store.Rename(ctx, uid, categoryID, name); err != nil {
		return nil, err
	}
	s.cache.InvalidateVocabulary(uid)
	category.Name = name
	return category, nil
}

func (s *categoryService) Delete(ctx context.Context, uid, categoryID string) error {
	if err := s.store.Delete(ctx, uid, categoryID); err != nil {
		return err
	}
	s.cache.InvalidateVocabulary(uid)
	return nil
}

func namedCategories(names []string) []*models.Category {
	out := make([]*models.Category, 0, len(names))
	for _, n := range names {
		out = append(out, &models.Category{Name: n})
	}
	return out
}

// nameTaken compares case-insensitively, ignoring the category being renamed.
func nameTaken(categories []models.Category, name, exceptID string) bool {
	for _, c := range categories {
		if (exceptID == "" || c.CategoryID != exceptID) && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}
