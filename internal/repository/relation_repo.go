package repository

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
	"gorm.io/gorm"
)

type RelationRepository interface {
	Count(ctx context.Context, relationType domain.RelationType, filter domain.RelationFilter) (int64, error)
	PageQuery(ctx context.Context, relationType domain.RelationType, filter domain.RelationFilter, batchIndex int, batchSize int) ([]domain.RelationRecord, error)
}

type GormRelationRepo struct {
	db *gorm.DB
}

func NewGormRelationRepo(db *gorm.DB) *GormRelationRepo {
	return &GormRelationRepo{db: db}
}

func (r *GormRelationRepo) Count(ctx context.Context, relationType domain.RelationType, filter domain.RelationFilter) (int64, error) {
	var total int64
	if err := r.scoped(ctx, relationType, filter).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// PageQuery returns the batchIndex-th page of batchSize records ordered by id,
// so a page boundary is stable while rows are only appended.
func (r *GormRelationRepo) PageQuery(
	ctx context.Context,
	relationType domain.RelationType,
	filter domain.RelationFilter,
	batchIndex int,
	batchSize int,
) ([]domain.RelationRecord, error) {
	if batchIndex < 0 {
		return nil, fmt.Errorf("%w: batch index must not be negative", domain.ErrValidation)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: batch size must be positive", domain.ErrValidation)
	}

	var models []RelationModel
	err := r.scoped(ctx, relationType, filter).
		Order("id ASC").
		Offset(batchIndex * batchSize).
		Limit(batchSize).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.RelationRecord, 0, len(models))
	for i := range models {
		records = append(records, relationModelToDomain(&models[i]))
	}
	return records, nil
}

func (r *GormRelationRepo) scoped(ctx context.Context, relationType domain.RelationType, filter domain.RelationFilter) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&RelationModel{}).
		Where("relation_type = ?", relationType)

	if filter.CreatedFrom != nil {
		query = query.Where("create_time >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("create_time <= ?", *filter.CreatedTo)
	}
	return query
}
