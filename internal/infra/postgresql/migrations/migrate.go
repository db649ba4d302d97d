package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrate applies the job's own schema. The relation and content tables belong
// to the community service and are never migrated from here.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createJobRunsTable(),
		addJobRunsIndexes(),
	})

	return m.Migrate()
}
