// Package user manages the users of the caller's tenant.
package user

import (
	"context"
	"log/slog"
	"strings"

	"dompet/models"
	"dompet/pkg/apperr"
	"dompet/pkg/auth"
	"dompet/pkg/store"
	"dompet/pkg/validate"
)

// CreateInput is the payload of a new user. The tenant always comes from
// the caller. Password is optional; without one the user is chat-only.
type CreateInput struct {
	Email             string `json:"email" validate:"omitempty,email,max=255"`
	Password          string `json:"password" validate:"omitempty,min=6"`
	TelegramChatID    string `json:"telegramChatId" validate:"max=64"`
	TelegramUsername  string `json:"telegramUsername" validate:"max=255"`
	TelegramFirstName string `json:"telegramFirstName" validate:"max=255"`
	TelegramLastName  string `json:"telegramLastName" validate:"max=255"`
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Email             *string `json:"email" validate:"omitempty,email,max=255"`
	Password          *string `json:"password" validate:"omitempty,min=6"`
	TelegramChatID    *string `json:"telegramChatId" validate:"omitempty,max=64"`
	TelegramUsername  *string `json:"telegramUsername" validate:"omitempty,max=255"`
	TelegramFirstName *string `json:"telegramFirstName" validate:"omitempty,max=255"`
	TelegramLastName  *string `json:"telegramLastName" validate:"omitempty,max=255"`
	IsActive          *bool   `json:"isActive"`
}

// WithClient is a user joined with its tenant.
type WithClient struct {
	*models.User
	Client *models.Client `json:"client"`
}

type Service struct {
	users   store.UserRepository
	clients store.ClientRepository
	cost    int
	log     *slog.Logger
}

func New(st *store.Store, bcryptCost int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: st.Users, clients: st.Clients, cost: bcryptCost, log: logger.With("component", "user")}
}

func clean(s string) string { return strings.TrimSpace(s) }

// username drops a leading @ and folds case; Telegram handles are case-insensitive.
func username(s string) string { return strings.ToLower(strings.TrimPrefix(clean(s), "@")) }

func (s *Service) Create(ctx context.Context, caller auth.Identity, in CreateInput) (*models.User, error) {
	in.Email = auth.NormalizeEmail(in.Email)
	in.TelegramUsername = username(in.TelegramUsername)
	err := validate.Struct(in, func(ve *apperr.ValidationError) {
		if in.Email == "" && in.TelegramUsername == "" {
			ve.Add("email", "or telegramUsername is required")
		}
		if in.Password != "" && in.Email == "" {
			ve.Add("email", "is required when a password is set")
		}
	})
	if err != nil {
		return nil, err
	}

	u := &models.User{
		ClientID:          caller.ClientID,
		Email:             in.Email,
		TelegramChatID:    clean(in.TelegramChatID),
		TelegramUsername:  in.TelegramUsername,
		TelegramFirstName: clean(in.TelegramFirstName),
		TelegramLastName:  clean(in.TelegramLastName),
		IsActive:          true,
	}
	if in.Password != "" {
		if u.PasswordHash, err = auth.HashPassword(in.Password, s.cost); err != nil {
			return nil, err
		}
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info("user created", "user_id", u.ID, "client_id", u.ClientID)
	return u, nil
}

// List returns the active users of the caller's tenant.
func (s *Service) List(ctx context.Context, caller auth.Identity) ([]models.User, error) {
	users, err := s.users.ListByClient(ctx, caller.ClientID)
	if err != nil {
		return nil, err
	}
	s.log.Debug("listed users", "client_id", caller.ClientID, "count", len(users))
	return users, nil
}

// owned loads a user of any state and checks it belongs to the caller's tenant.
func (s *Service) owned(ctx context.Context, caller auth.Identity, id uint) (*models.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.ClientID != caller.ClientID {
		return nil, apperr.Forbidden("user belongs to another client")
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Identity, id uint) (*models.User, error) {
	return s.owned(ctx, caller, id)
}

// GetWithClient fetches the user, then its client in a second explicit step.
func (s *Service) GetWithClient(ctx context.Context, caller auth.Identity, id uint) (*WithClient, error) {
	u, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	c, err := s.clients.FindByID(ctx, u.ClientID)
	if err != nil {
		return nil, err
	}
	return &WithClient{User: u, Client: c}, nil
}

func (s *Service) Update(ctx context.Context, caller auth.Identity, id uint, in UpdateInput) (*models.User, error) {
	if in.Email != nil {
		e := auth.NormalizeEmail(*in.Email)
		in.Email = &e
	}
	if in.TelegramUsername != nil {
		n := username(*in.TelegramUsername)
		in.TelegramUsername = &n
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, caller, id); err != nil {
		return nil, err
	}

	p := store.UserPatch{
		Email:             in.Email,
		TelegramChatID:    in.TelegramChatID,
		TelegramUsername:  in.TelegramUsername,
		TelegramFirstName: in.TelegramFirstName,
		TelegramLastName:  in.TelegramLastName,
		IsActive:          in.IsActive,
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password, s.cost)
		if err != nil {
			return nil, err
		}
		p.PasswordHash = hash
	}
	return s.users.Update(ctx, id, p)
}

// Deactivate marks the user inactive. Users are never hard-deleted.
func (s *Service) Deactivate(ctx context.Context, caller auth.Identity, id uint) (*models.User, error) {
	if _, err := s.owned(ctx, caller, id); err != nil {
		return nil, err
	}
	u, err := s.users.Deactivate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("user deactivated", "user_id", id, "client_id", caller.ClientID)
	return u, nil
}
