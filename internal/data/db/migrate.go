package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/tutorbridge-backend/internal/domain"
)

// AutoMigrateAll migrates every domain document plus any extra models owned by
// collaborators that share the store (the local identity provider).
func AutoMigrateAll(db *gorm.DB, extra ...any) error {
	models := append(domain.Models(), extra...)
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
