package store

import (
	"context"

	"dompet/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type gormClients struct {
	db *gorm.DB
}

func (r *gormClients) Create(ctx context.Context, c *models.Client) error {
	return translate(r.db.WithContext(ctx).Create(c).Error, "client")
}

// FindByID returns the client regardless of its active flag.
func (r *gormClients) FindByID(ctx context.Context, id uint) (*models.Client, error) {
	var c models.Client
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, translate(err, "client")
	}
	return &c, nil
}

func (r *gormClients) FindByExternalID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	var c models.Client
	err := r.db.WithContext(ctx).Where("external_id = ? AND is_active = ?", id, true).First(&c).Error
	if err != nil {
		return nil, translate(err, "client")
	}
	return &c, nil
}

func (r *gormClients) FindActiveByName(ctx context.Context, name string) (*models.Client, error) {
	var c models.Client
	if err := r.db.WithContext(ctx).Where("name = ? AND is_active = ?", name, true).First(&c).Error; err != nil {
		return nil, translate(err, "client")
	}
	return &c, nil
}

func (r *gormClients) ListActive(ctx context.Context) ([]models.Client, error) {
	var out []models.Client
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&out).Error; err != nil {
		return nil, translate(err, "client")
	}
	return out, nil
}

func (r *gormClients) Update(ctx context.Context, id uint, p ClientPatch) (*models.Client, error) {
	changes := map[string]any{}
	if p.Name != nil {
		changes["name"] = *p.Name
	}
	if p.BotTelegram != nil {
		changes["bot_telegram"] = *p.BotTelegram
	}
	if p.BotToken != nil {
		changes["bot_token"] = *p.BotToken
	}
	if p.IsActive != nil {
		changes["is_active"] = *p.IsActive
	}
	if err := updateByID(ctx, r.db, &models.Client{}, id, changes, "client"); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *gormClients) Deactivate(ctx context.Context, id uint) (*models.Client, error) {
	inactive := false
	return r.Update(ctx, id, ClientPatch{IsActive: &inactive})
}

// updateByID applies changes and reports not-found when no row matched.
// An empty change set only checks existence.
func updateByID(ctx context.Context, db *gorm.DB, model any, id uint, changes map[string]any, what string) error {
	if len(changes) == 0 {
		var n int64
		if err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
			return translate(err, what)
		}
		if n == 0 {
			return translate(gorm.ErrRecordNotFound, what)
		}
		return nil
	}
	res := db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return translate(res.Error, what)
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, what)
	}
	return nil
}
