// Package store holds the persistence ports and their gorm implementation.
// Every finder returns an apperr not-found error when nothing matches.
package store

import (
	"context"
	"time"

	"dompet/models"

	"github.com/google/uuid"
)

// ClientPatch carries the optional fields of a client update.
type ClientPatch struct {
	Name        *string
	BotTelegram *string
	BotToken    *string
	IsActive    *bool
}

// UserPatch carries the optional fields of a user update.
type UserPatch struct {
	Email             *string
	PasswordHash      []byte
	TelegramChatID    *string
	TelegramUsername  *string
	TelegramFirstName *string
	TelegramLastName  *string
	IsActive          *bool
}

// ExpensePatch carries the mutable fields of an expense.
type ExpensePatch struct {
	Amount   *int64
	Category *models.Category
	Note     *string
	Date     *time.Time
}

// ExpenseFilter is the storage-level expense constraint. ClientID is mandatory.
type ExpenseFilter struct {
	ClientID uint
	Category models.Category
	From     *time.Time // inclusive
	To       *time.Time // inclusive
}

// Page is an offset window over a sorted result.
type Page struct {
	Offset int
	Limit  int
}

// Totals is the aggregate over a filtered expense set.
type Totals struct {
	Total int64
	Count int64
}

// CategoryTotal is one row of the per-category breakdown.
type CategoryTotal struct {
	Category models.Category
	Total    int64
	Count    int64
}

type ClientRepository interface {
	Create(ctx context.Context, c *models.Client) error
	FindByID(ctx context.Context, id uint) (*models.Client, error)
	FindByExternalID(ctx context.Context, id uuid.UUID) (*models.Client, error)
	FindActiveByName(ctx context.Context, name string) (*models.Client, error)
	ListActive(ctx context.Context) ([]models.Client, error)
	Update(ctx context.Context, id uint, p ClientPatch) (*models.Client, error)
	Deactivate(ctx context.Context, id uint) (*models.Client, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByIDs(ctx context.Context, ids []uint) ([]models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByTelegramUsername(ctx context.Context, username string) (*models.User, error)
	FindByTelegramChatID(ctx context.Context, chatID string) (*models.User, error)
	ListByClient(ctx context.Context, clientID uint) ([]models.User, error)
	Update(ctx context.Context, id uint, p UserPatch) (*models.User, error)
	Deactivate(ctx context.Context, id uint) (*models.User, error)
}

type ExpenseRepository interface {
	Create(ctx context.Context, e *models.Expense) error
	FindByID(ctx context.Context, id uint) (*models.Expense, error)
	Update(ctx context.Context, id uint, p ExpensePatch) (*models.Expense, error)
	Delete(ctx context.Context, id uint) (*models.Expense, error)
	// List returns the page sorted by date then id, both descending, and the
	// total number of matching rows.
	List(ctx context.Context, f ExpenseFilter, p Page) ([]models.Expense, int64, error)
	// Summarize returns totals and the breakdown sorted by total descending.
	Summarize(ctx context.Context, f ExpenseFilter) (Totals, []CategoryTotal, error)
}

// Registrar creates a client together with its first user, atomically.
type Registrar interface {
	RegisterOwner(ctx context.Context, c *models.Client, u *models.User) error
}

// Store bundles the repositories of one backend.
type Store struct {
	Clients   ClientRepository
	Users     UserRepository
	Expenses  ExpenseRepository
	Registrar Registrar
}
