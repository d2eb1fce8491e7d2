package db

import (
	"fmt"

	"github.com/zulandar/proctor/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model Proctor migrates.
func AllModels() []interface{} {
	return []interface{}{
		&models.Interview{},
		&models.Evaluation{},
		&models.Claim{},
		&models.Candidate{},
		&models.Problem{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
