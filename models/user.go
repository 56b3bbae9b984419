package models

import (
	"time"
)

// User belongs to exactly one client. REST users carry an email and password
// hash; users known only through the bot may have neither.
type User struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	ClientID          uint      `gorm:"index;not null" json:"clientId"`
	Client            *Client   `gorm:"foreignKey:ClientID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	Email             string    `gorm:"size:255;index" json:"email,omitempty"`
	PasswordHash      []byte    `json:"-"`
	TelegramChatID    string    `gorm:"size:64;index" json:"telegramChatId,omitempty"`
	TelegramUsername  string    `gorm:"size:255;index" json:"telegramUsername,omitempty"`
	TelegramFirstName string    `gorm:"size:255" json:"telegramFirstName,omitempty"`
	TelegramLastName  string    `gorm:"size:255" json:"telegramLastName,omitempty"`
	IsActive          bool      `gorm:"default:true;not null;index" json:"isActive"`
}

// HasPassword reports whether the user can log in through the REST API.
func (u *User) HasPassword() bool {
	return len(u.PasswordHash) > 0
}
