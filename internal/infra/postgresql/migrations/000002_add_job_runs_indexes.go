package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func addJobRunsIndexes() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_add_job_runs_indexes",
		Migrate: func(tx *gorm.DB) error {
			statements := []string{
				`CREATE INDEX IF NOT EXISTS idx_job_runs_started_at ON job_runs (started_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_job_runs_outcome ON job_runs (outcome, started_at DESC)`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			statements := []string{
				`DROP INDEX IF EXISTS idx_job_runs_outcome`,
				`DROP INDEX IF EXISTS idx_job_runs_started_at`,
			}
			for _, sql := range statements {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}
