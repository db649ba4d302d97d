package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/like-notify-job/internal/repository"
	"gorm.io/gorm"
)

func createJobRunsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_job_runs",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.JobRunModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.JobRunModel{})
		},
	}
}
