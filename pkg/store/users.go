package store

import (
	"context"
	"strings"

	"dompet/models"

	"gorm.io/gorm"
)

type gormUsers struct {
	db *gorm.DB
}

func (r *gormUsers) Create(ctx context.Context, u *models.User) error {
	return translate(r.db.WithContext(ctx).Omit("Client").Create(u).Error, "user")
}

func (r *gormUsers) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

func (r *gormUsers) FindByIDs(ctx context.Context, ids []uint) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, translate(err, "user")
	}
	return out, nil
}

func (r *gormUsers) findActive(ctx context.Context, column, value string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where(column+" = ? AND is_active = ?", value, true).First(&u).Error
	if err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

func (r *gormUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findActive(ctx, "email", email)
}

func (r *gormUsers) FindByTelegramUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findActive(ctx, "lower(telegram_username)", strings.ToLower(username))
}

func (r *gormUsers) FindByTelegramChatID(ctx context.Context, chatID string) (*models.User, error) {
	return r.findActive(ctx, "telegram_chat_id", chatID)
}

func (r *gormUsers) ListByClient(ctx context.Context, clientID uint) ([]models.User, error) {
	var out []models.User
	err := r.db.WithContext(ctx).Where("client_id = ? AND is_active = ?", clientID, true).Order("id").Find(&out).Error
	if err != nil {
		return nil, translate(err, "user")
	}
	return out, nil
}

func (r *gormUsers) Update(ctx context.Context, id uint, p UserPatch) (*models.User, error) {
	changes := map[string]any{}
	if p.Email != nil {
		changes["email"] = *p.Email
	}
	if p.PasswordHash != nil {
		changes["password_hash"] = p.PasswordHash
	}
	if p.TelegramChatID != nil {
		changes["telegram_chat_id"] = *p.TelegramChatID
	}
	if p.TelegramUsername != nil {
		changes["telegram_username"] = *p.TelegramUsername
	}
	if p.TelegramFirstName != nil {
		changes["telegram_first_name"] = *p.TelegramFirstName
	}
	if p.TelegramLastName != nil {
		changes["telegram_last_name"] = *p.TelegramLastName
	}
	if p.IsActive != nil {
		changes["is_active"] = *p.IsActive
	}
	if err := updateByID(ctx, r.db, &models.User{}, id, changes, "user"); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *gormUsers) Deactivate(ctx context.Context, id uint) (*models.User, error) {
	inactive := false
	return r.Update(ctx, id, UserPatch{IsActive: &inactive})
}
