package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
	"gorm.io/gorm"
)

type RunRepository interface {
	Create(ctx context.Context, run *domain.JobRun) error
	Latest(ctx context.Context) (*domain.JobRun, error)
	List(ctx context.Context, limit int) ([]domain.JobRun, error)
}

type GormRunRepo struct {
	db *gorm.DB
}

func NewGormRunRepo(db *gorm.DB) *GormRunRepo {
	return &GormRunRepo{db: db}
}

func (r *GormRunRepo) Create(ctx context.Context, run *domain.JobRun) error {
	model := jobRunModelFromDomain(run)
	if model == nil {
		return nil
	}
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *GormRunRepo) Latest(ctx context.Context) (*domain.JobRun, error) {
	var model JobRunModel
	err := r.db.WithContext(ctx).Order("started_at DESC").First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return jobRunModelToDomain(&model), nil
}

func (r *GormRunRepo) List(ctx context.Context, limit int) ([]domain.JobRun, error) {
	if limit < 1 {
		limit = 20
	}
	limit = min(limit, 100)

	var models []JobRunModel
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	runs := make([]domain.JobRun, 0, len(models))
	for i := range models {
		runs = append(runs, *jobRunModelToDomain(&models[i]))
	}
	return runs, nil
}
