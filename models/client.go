package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client is a tenant. It owns users, expenses and an optional Telegram bot binding.
type Client struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	ExternalID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"externalId"`
	// Name is unique among active clients (partial index, see db.go).
	Name        string `gorm:"size:255;not null" json:"name"`
	BotTelegram string `gorm:"size:255" json:"botTelegram,omitempty"`
	BotToken    string `gorm:"size:128" json:"-"`
	// Active replaces physical deletion.
	IsActive bool `gorm:"default:true;not null;index" json:"isActive"`
}

// BeforeCreate assigns the public identifier when the caller did not.
func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ExternalID == uuid.Nil {
		c.ExternalID = uuid.New()
	}
	return nil
}

// HasBot reports whether the client can send Telegram replies.
func (c *Client) HasBot() bool {
	return c != nil && c.BotToken != ""
}
