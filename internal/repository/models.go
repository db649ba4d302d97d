package repository

import (
	"time"

	"github.com/kursadbilgin/like-notify-job/internal/domain"
)

// RelationModel maps the social_relation table. The table is owned by the
// community service; this job only reads it.
type RelationModel struct {
	ID           int64               `gorm:"primaryKey"`
	SourceID     *string             `gorm:"column:source_id;type:varchar(64)"`
	TargetID     *string             `gorm:"column:target_id;type:varchar(64)"`
	RelationType domain.RelationType `gorm:"column:relation_type;type:varchar(32);not null"`
	CreateTime   *time.Time          `gorm:"column:create_time"`
}

func (RelationModel) TableName() string {
	return "social_relation"
}

// ContentModel maps the ownership columns of the content table.
type ContentModel struct {
	ID     string `gorm:"column:id;type:varchar(64);primaryKey"`
	UserID string `gorm:"column:user_id;type:varchar(64)"`
}

func (ContentModel) TableName() string {
	return "content"
}

// JobRunModel is the persistence model for job_runs.
type JobRunModel struct {
	ID                string              `gorm:"type:uuid;primaryKey"`
	RelationType      domain.RelationType `gorm:"type:varchar(32);not null"`
	Outcome           domain.RunOutcome   `gorm:"type:varchar(20);not null"`
	TotalCount        int64               `gorm:"not null;default:0"`
	BatchSize         int                 `gorm:"not null;default:0"`
	StartBatch        int                 `gorm:"not null;default:0"`
	EndBatch          int                 `gorm:"not null;default:0"`
	CompletedBatches  int64               `gorm:"not null;default:0"`
	SucceededBatches  int64               `gorm:"not null;default:0"`
	FailedBatches     int64               `gorm:"not null;default:0"`
	RecordsProcessed  int64               `gorm:"not null;default:0"`
	NotificationsSent int64               `gorm:"not null;default:0"`
	NotificationsFail int64               `gorm:"column:notifications_failed;not null;default:0"`
	Error             *string             `gorm:"type:text"`
	StartedAt         time.Time           `gorm:"type:timestamptz;not null"`
	FinishedAt        time.Time           `gorm:"type:timestamptz;not null"`
}

func (JobRunModel) TableName() string {
	return "job_runs"
}

func relationModelToDomain(m *RelationModel) domain.RelationRecord {
	record := domain.RelationRecord{
		RelationType: m.RelationType,
		CreateTime:   m.CreateTime,
	}
	if m.SourceID != nil {
		record.SourceID = *m.SourceID
	}
	if m.TargetID != nil {
		record.TargetID = *m.TargetID
	}
	return record
}

func jobRunModelFromDomain(r *domain.JobRun) *JobRunModel {
	if r == nil {
		return nil
	}

	return &JobRunModel{
		ID:                r.ID,
		RelationType:      r.RelationType,
		Outcome:           r.Outcome,
		TotalCount:        r.TotalCount,
		BatchSize:         r.BatchSize,
		StartBatch:        r.StartBatch,
		EndBatch:          r.EndBatch,
		CompletedBatches:  r.CompletedBatches,
		SucceededBatches:  r.SucceededBatches,
		FailedBatches:     r.FailedBatches,
		RecordsProcessed:  r.RecordsProcessed,
		NotificationsSent: r.NotificationsSent,
		NotificationsFail: r.NotificationsFail,
		Error:             r.Error,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
	}
}

func jobRunModelToDomain(m *JobRunModel) *domain.JobRun {
	if m == nil {
		return nil
	}

	return &domain.JobRun{
		ID:                m.ID,
		RelationType:      m.RelationType,
		Outcome:           m.Outcome,
		TotalCount:        m.TotalCount,
		BatchSize:         m.BatchSize,
		StartBatch:        m.StartBatch,
		EndBatch:          m.EndBatch,
		CompletedBatches:  m.CompletedBatches,
		SucceededBatches:  m.SucceededBatches,
		FailedBatches:     m.FailedBatches,
		RecordsProcessed:  m.RecordsProcessed,
		NotificationsSent: m.NotificationsSent,
		NotificationsFail: m.NotificationsFail,
		Error:             m.Error,
		StartedAt:         m.StartedAt,
		FinishedAt:        m.FinishedAt,
	}
}
