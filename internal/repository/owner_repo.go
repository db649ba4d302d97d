package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// OwnerResolver finds the user who owns a piece of content.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, contentID string) (userID string, found bool, err error)
}

type GormOwnerResolver struct {
	db *gorm.DB
}

func NewGormOwnerResolver(db *gorm.DB) *GormOwnerResolver {
	return &GormOwnerResolver{db: db}
}

func (r *GormOwnerResolver) ResolveOwner(ctx context.Context, contentID string) (string, bool, error) {
	var model ContentModel
	err := r.db.WithContext(ctx).
		Select("id", "user_id").
		First(&model, "id = ?", contentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	owner := strings.TrimSpace(model.UserID)
	if owner == "" {
		return "", false, nil
	}
	return owner, true, nil
}
