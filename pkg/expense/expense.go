// Package expense records expenses for a tenant and answers listing and
// summary queries over them.
package expense

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"dompet/models"
	"dompet/pkg/apperr"
	"dompet/pkg/auth"
	"dompet/pkg/store"
	"dompet/pkg/validate"
)

// CreateInput is a new expense. UserID defaults to the caller and must belong
// to the caller's tenant. Date is RFC 3339 or YYYY-MM-DD and defaults to now.
type CreateInput struct {
	UserID            uint            `json:"userId"`
	Amount            int64           `json:"amount" validate:"required,gt=0"`
	Category          models.Category `json:"category" validate:"required,category"`
	Note              string          `json:"note" validate:"max=1024"`
	Date              string          `json:"date"`
	TelegramMessageID *int64          `json:"telegramMessageId"`
}

// UpdateInput changes only the fields that are set.
type UpdateInput struct {
	Amount   *int64           `json:"amount" validate:"omitempty,gt=0"`
	Category *models.Category `json:"category" validate:"omitempty,category"`
	Note     *string          `json:"note" validate:"omitempty,max=1024"`
	Date     *string          `json:"date"`
}

// UserBrief is the slice of the owning user shown next to an expense.
type UserBrief struct {
	ID                uint   `json:"id"`
	TelegramUsername  string `json:"telegramUsername,omitempty"`
	TelegramFirstName string `json:"telegramFirstName,omitempty"`
	TelegramLastName  string `json:"telegramLastName,omitempty"`
}

// Record is an expense with its user brief attached.
type Record struct {
	models.Expense
	User *UserBrief `json:"user,omitempty"`
}

// ListResult is one page of a listing.
type ListResult struct {
	Data       []Record `json:"data"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
}

// CategoryTotal is one breakdown row of a summary.
type CategoryTotal struct {
	Category models.Category `json:"category"`
	Total    int64           `json:"total"`
	Count    int64           `json:"count"`
}

// Summary is the grand total plus the per-category breakdown, largest first.
type Summary struct {
	Total     int64           `json:"total"`
	Count     int64           `json:"count"`
	Breakdown []CategoryTotal `json:"breakdown"`
}

type Service struct {
	expenses store.ExpenseRepository
	users    store.UserRepository
	loc      *time.Location
	log      *slog.Logger
	now      func() time.Time
}

func New(st *store.Store, loc *time.Location, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		expenses: st.Expenses,
		users:    st.Users,
		loc:      loc,
		log:      logger.With("component", "expense"),
		now:      time.Now,
	}
}

func dateField(ve *apperr.ValidationError, raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	t, ok := ParseDate(raw)
	if !ok {
		ve.Add("date", "must be an RFC 3339 timestamp or YYYY-MM-DD")
		return nil
	}
	return &t
}

func (s *Service) Create(ctx context.Context, caller auth.Identity, in CreateInput) (*models.Expense, error) {
	in.Category = models.Category(strings.ToLower(strings.TrimSpace(string(in.Category))))
	var date *time.Time
	err := validate.Struct(in, func(ve *apperr.ValidationError) { date = dateField(ve, in.Date) })
	if err != nil {
		return nil, err
	}

	userID := caller.UserID
	if in.UserID != 0 && in.UserID != caller.UserID {
		u, err := s.users.FindByID(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		if u.ClientID != caller.ClientID {
			return nil, apperr.Forbidden("user belongs to another client")
		}
		if !u.IsActive {
			return nil, apperr.Invalid("userId", "must be an active user")
		}
		userID = u.ID
	}

	e := &models.Expense{
		ClientID:          caller.ClientID,
		UserID:            userID,
		Amount:            in.Amount,
		Category:          in.Category,
		Note:              strings.TrimSpace(in.Note),
		TelegramMessageID: in.TelegramMessageID,
	}
	if date != nil {
		e.Date = *date
	} else {
		e.Date = s.now()
	}
	if err := s.expenses.Create(ctx, e); err != nil {
		return nil, err
	}
	s.log.Info("expense created", "expense_id", e.ID, "client_id", e.ClientID, "user_id", e.UserID, "amount", e.Amount, "category", e.Category)
	return e, nil
}

// owned loads an expense and checks it belongs to the caller's tenant.
func (s *Service) owned(ctx context.Context, caller auth.Identity, id uint) (*models.Expense, error) {
	e, err := s.expenses.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.ClientID != caller.ClientID {
		return nil, apperr.Forbidden("expense belongs to another client")
	}
	return e, nil
}

func (s *Service) Get(ctx context.Context, caller auth.Identity, id uint) (*Record, error) {
	e, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	recs, err := s.attachUsers(ctx, []models.Expense{*e})
	if err != nil {
		return nil, err
	}
	return &recs[0], nil
}

func (s *Service) Update(ctx context.Context, caller auth.Identity, id uint, in UpdateInput) (*Record, error) {
	if in.Category != nil {
		c := models.Category(strings.ToLower(strings.TrimSpace(string(*in.Category))))
		in.Category = &c
	}
	var date *time.Time
	err := validate.Struct(in, func(ve *apperr.ValidationError) {
		if in.Date != nil {
			if date = dateField(ve, *in.Date); date == nil && strings.TrimSpace(*in.Date) == "" {
				ve.Add("date", "must not be empty")
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, caller, id); err != nil {
		return nil, err
	}
	e, err := s.expenses.Update(ctx, id, store.ExpensePatch{Amount: in.Amount, Category: in.Category, Note: in.Note, Date: date})
	if err != nil {
		return nil, err
	}
	recs, err := s.attachUsers(ctx, []models.Expense{*e})
	if err != nil {
		return nil, err
	}
	return &recs[0], nil
}

// Delete removes the expense permanently and returns what was removed.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, id uint) (*models.Expense, error) {
	if _, err := s.owned(ctx, caller, id); err != nil {
		return nil, err
	}
	e, err := s.expenses.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("expense deleted", "expense_id", id, "client_id", caller.ClientID)
	return e, nil
}

// List returns one page of the caller's expenses, newest first.
func (s *Service) List(ctx context.Context, clientID uint, q Query) (*ListResult, error) {
	ve := &apperr.ValidationError{}
	f := buildFilter(ve, clientID, q, s.now(), s.loc)
	page, limit := paging(ve, q)
	if err := ve.Err(); err != nil {
		return nil, err
	}

	rows, total, err := s.expenses.List(ctx, f, store.Page{Offset: (page - 1) * limit, Limit: limit})
	if err != nil {
		return nil, err
	}
	recs, err := s.attachUsers(ctx, rows)
	if err != nil {
		return nil, err
	}
	return &ListResult{Data: recs, Total: total, Page: page, TotalPages: TotalPages(total, limit)}, nil
}

// Summary aggregates the caller's expenses matching q. Paging fields are ignored.
func (s *Service) Summary(ctx context.Context, clientID uint, q Query) (*Summary, error) {
	f, err := BuildFilter(clientID, q, s.now(), s.loc)
	if err != nil {
		return nil, err
	}
	return s.Summarize(ctx, f)
}

// Summarize aggregates an already built filter.
func (s *Service) Summarize(ctx context.Context, f store.ExpenseFilter) (*Summary, error) {
	totals, rows, err := s.expenses.Summarize(ctx, f)
	if err != nil {
		return nil, err
	}
	out := &Summary{Total: totals.Total, Count: totals.Count, Breakdown: make([]CategoryTotal, 0, len(rows))}
	for _, r := range rows {
		out.Breakdown = append(out.Breakdown, CategoryTotal{Category: r.Category, Total: r.Total, Count: r.Count})
	}
	return out, nil
}

// attachUsers fetches the owners of rows in one lookup and joins them in.
func (s *Service) attachUsers(ctx context.Context, rows []models.Expense) ([]Record, error) {
	recs := make([]Record, len(rows))
	if len(rows) == 0 {
		return recs, nil
	}
	seen := map[uint]bool{}
	var ids []uint
	for _, e := range rows {
		if !seen[e.UserID] {
			seen[e.UserID] = true
			ids = append(ids, e.UserID)
		}
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	briefs := make(map[uint]*UserBrief, len(users))
	for _, u := range users {
		briefs[u.ID] = &UserBrief{
			ID:                u.ID,
			TelegramUsername:  u.TelegramUsername,
			TelegramFirstName: u.TelegramFirstName,
			TelegramLastName:  u.TelegramLastName,
		}
	}
	for i, e := range rows {
		recs[i] = Record{Expense: e, User: briefs[e.UserID]}
	}
	return recs, nil
}
