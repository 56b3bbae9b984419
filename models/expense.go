package models

import "time"

// Expense is a single spending record. It is hard-deleted.
type Expense struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	ClientID  uint      `gorm:"index:idx_expenses_client_date,priority:1;not null" json:"clientId"`
	UserID    uint      `gorm:"index;not null" json:"userId"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	Amount    int64     `gorm:"not null" json:"amount"` // smallest currency unit
	Category  Category  `gorm:"size:32;not null;default:other;index" json:"category"`
	Note      string    `gorm:"size:1024" json:"note,omitempty"`
	Date      time.Time `gorm:"index:idx_expenses_client_date,priority:2;not null" json:"date"`
	// TelegramMessageID is set for entries created through the bot.
	TelegramMessageID *int64 `json:"telegramMessageId,omitempty"`
}
