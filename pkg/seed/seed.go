// Package seed creates the demo tenant used for local runs and manual testing.
package seed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dompet/models"
	"dompet/pkg/apperr"
	"dompet/pkg/auth"
	"dompet/pkg/store"

	"golang.org/x/crypto/bcrypt"
)

const (
	DemoClientName = "Demo Client"
	DemoEmail      = "admin@email.com"
	DemoPassword   = "password123"
	DemoUsername   = "demo_user"
)

var demoExpenses = []struct {
	amount   int64
	category models.Category
	note     string
}{
	{15000, models.CategoryFood, "Nasi goreng ayam"},
	{25000, models.CategoryTransport, "Grab ke kantor"},
	{50000, models.CategoryEntertainment, "Bioskop dengan teman"},
	{75000, models.CategoryShopping, "Beli baju"},
	{30000, models.CategoryHealth, "Obat batuk"},
	{100000, models.CategoryUtilities, "Bayar listrik"},
}

// Demo creates the demo client, its user and sample expenses dated now. It
// does nothing and returns false when the demo client already exists.
func Demo(ctx context.Context, st *store.Store, now time.Time, logger *slog.Logger) (bool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := st.Clients.FindActiveByName(ctx, DemoClientName); err == nil {
		return false, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return false, err
	}

	hash, err := auth.HashPassword(DemoPassword, bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}
	client := &models.Client{Name: DemoClientName, BotTelegram: "@demo_expense_bot", IsActive: true}
	user := &models.User{
		Email:             DemoEmail,
		PasswordHash:      hash,
		TelegramChatID:    "123456789",
		TelegramUsername:  DemoUsername,
		TelegramFirstName: "Demo",
		TelegramLastName:  "User",
		IsActive:          true,
	}
	if err := st.Registrar.RegisterOwner(ctx, client, user); err != nil {
		return false, err
	}
	logger.Info("demo client created", "client_id", client.ID, "user_id", user.ID)

	for _, d := range demoExpenses {
		e := &models.Expense{ClientID: client.ID, UserID: user.ID, Amount: d.amount, Category: d.category, Note: d.note, Date: now}
		if err := st.Expenses.Create(ctx, e); err != nil {
			return true, err
		}
		logger.Debug("demo expense created", "note", d.note, "amount", d.amount)
	}
	logger.Info("seeded demo data", "login", DemoEmail, "password", DemoPassword)
	return true, nil
}
