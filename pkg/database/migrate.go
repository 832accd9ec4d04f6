package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates the tables of every model group in order.
func AutoMigrate(db *gorm.DB, groups ...[]any) error {
	n := 0
	for _, models := range groups {
		if err := db.AutoMigrate(models...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		n += len(models)
	}
	log.Info().Int("models", n).Msg("schema migrated")
	return nil
}
