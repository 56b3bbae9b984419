package store

import (
	"fmt"

	"dompet/models"

	"gorm.io/gorm"
)

// Models lists the tables in dependency order.
var Models = []any{&models.Client{}, &models.User{}, &models.Expense{}}

// activeUniqueIndexes express "unique among active rows", which gorm tags cannot.
var activeUniqueIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_clients_name_active ON clients (name) WHERE is_active`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_users_email_active ON users (email) WHERE is_active AND email <> ''`,
	// superseded by the case-folded index below
	`DROP INDEX IF EXISTS ux_users_telegram_username_active`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_users_telegram_username_lower_active ON users (lower(telegram_username)) WHERE is_active AND telegram_username <> ''`,
}

// Migrate creates or updates the schema. Each model migrates on its own so a
// failure on one table is reported with its name.
func Migrate(db *gorm.DB) error {
	for _, m := range Models {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("migrate %T: %w", m, err)
		}
	}
	for _, stmt := range activeUniqueIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure index: %w", err)
		}
	}
	return nil
}
