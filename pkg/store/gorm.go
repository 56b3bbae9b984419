package store

import (
	"context"

	"dompet/models"

	"gorm.io/gorm"
)

// NewGorm builds the gorm-backed store. The db should be opened with
// TranslateError so duplicate keys surface as gorm.ErrDuplicatedKey.
func NewGorm(db *gorm.DB) *Store {
	return &Store{
		Clients:   &gormClients{db: db},
		Users:     &gormUsers{db: db},
		Expenses:  &gormExpenses{db: db},
		Registrar: &gormRegistrar{db: db},
	}
}

type gormRegistrar struct {
	db *gorm.DB
}

// RegisterOwner inserts the client and then its user in one transaction.
func (r *gormRegistrar) RegisterOwner(ctx context.Context, c *models.Client, u *models.User) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return translate(err, "client")
		}
		u.ClientID = c.ID
		if err := tx.Omit("Client").Create(u).Error; err != nil {
			return translate(err, "user")
		}
		return nil
	})
}
