package services

import (
	"context"
	"strings"
	"time"

	"github.com/GregMSThompson/finance-sync/internal/errs"
	"github.com/GregMSThompson/finance-sync/internal/models"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

type userUSStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, uid string, fields map[string]any) error
	GetUser(ctx context.Context, uid string) (*models.User, error)
}

type userService struct {
	Store    userUSStore
	clockNow func() time.Time
}

func NewUserService(store userUSStore) *userService {
	return &userService{
		Store:    store,
		clockNow: time.Now,
	}
}

// CreateUser registers the profile used for sync alerts.
func (s *userService) CreateUser(ctx context.Context, uid, email, first, last string) error {
	log := logger.FromContext(ctx)
	if strings.TrimSpace(uid) == "" {
		return errs.NewValidationError("uid is required")
	}

	now := s.clockNow()
	user := &models.User{
		UID:       uid,
		Email:     strings.TrimSpace(email),
		FirstName: first,
		LastName:  last,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.Store.CreateUser(ctx, user); err != nil {
		log.Error("failed to create user in store", "error", err)
		return err
	}

	log.Info("user created successfully", "first_name", first, "last_name", last)
	return nil
}

func (s *userService) GetUser(ctx context.Context, uid string) (*models.User, error) {
	return s.Store.GetUser(ctx, uid)
}

// SetSyncAlerts mutes or unmutes sync failure mails for the user.
func (s *userService) SetSyncAlerts(ctx context.Context, uid string, muted bool) (*models.User, error) {
	if _, err := s.Store.GetUser(ctx, uid); err != nil {
		return nil, err
	}
	if err := s.Store.UpdateUser(ctx, uid, map[string]any{"muteSyncAlerts": muted}); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("sync alert preference updated", "muted", muted)
	return s.Store.GetUser(ctx, uid)
}
