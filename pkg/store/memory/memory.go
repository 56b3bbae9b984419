// Package memory is an in-process implementation of the store ports. It
// backs tests and STORE_DRIVER=memory runs; data is lost on exit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"dompet/models"
	"dompet/pkg/apperr"
	"dompet/pkg/store"

	"github.com/google/uuid"
)

// DB holds every table behind one lock.
type DB struct {
	mu       sync.RWMutex
	now      func() time.Time
	clients  map[uint]models.Client
	users    map[uint]models.User
	expenses map[uint]models.Expense
	nextID   uint
}

// New returns an empty database and the store that serves it.
func New() (*DB, *store.Store) {
	db := &DB{
		now:      time.Now,
		clients:  map[uint]models.Client{},
		users:    map[uint]models.User{},
		expenses: map[uint]models.Expense{},
	}
	return db, &store.Store{
		Clients:   clientRepo{db},
		Users:     userRepo{db},
		Expenses:  expenseRepo{db},
		Registrar: registrar{db},
	}
}

func (db *DB) id() uint {
	db.nextID++
	return db.nextID
}

// Counts reports the number of rows per table.
func (db *DB) Counts() (clients, users, expenses int) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.clients), len(db.users), len(db.expenses)
}

func conflict(what string) error { return apperr.Conflict(what + " already exists") }

func notFound(what string) error { return apperr.NotFound(what + " not found") }

// clientNameTaken checks the active-name uniqueness rule. Caller holds the lock.
func (db *DB) clientNameTaken(name string, except uint) bool {
	for id, c := range db.clients {
		if id != except && c.IsActive && c.Name == name {
			return true
		}
	}
	return false
}

// userIdentityTaken checks active email and username uniqueness. Caller holds the lock.
func (db *DB) userIdentityTaken(email, username string, except uint) bool {
	for id, u := range db.users {
		if id == except || !u.IsActive {
			continue
		}
		if email != "" && u.Email == email {
			return true
		}
		if username != "" && strings.EqualFold(u.TelegramUsername, username) {
			return true
		}
	}
	return false
}

func (db *DB) insertClient(c *models.Client) error {
	if db.clientNameTaken(c.Name, 0) {
		return conflict("client")
	}
	now := db.now()
	c.ID = db.id()
	if c.ExternalID == uuid.Nil {
		c.ExternalID = uuid.New()
	}
	c.IsActive = true
	c.CreatedAt, c.UpdatedAt = now, now
	db.clients[c.ID] = *c
	return nil
}

func (db *DB) insertUser(u *models.User) error {
	if db.userIdentityTaken(u.Email, u.TelegramUsername, 0) {
		return conflict("user")
	}
	now := db.now()
	u.ID = db.id()
	u.IsActive = true
	u.CreatedAt, u.UpdatedAt = now, now
	u.Client = nil
	db.users[u.ID] = *u
	return nil
}

type registrar struct{ db *DB }

func (r registrar) RegisterOwner(ctx context.Context, c *models.Client, u *models.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.clientNameTaken(c.Name, 0) {
		return conflict("client")
	}
	if r.db.userIdentityTaken(u.Email, u.TelegramUsername, 0) {
		return conflict("user")
	}
	if err := r.db.insertClient(c); err != nil {
		return err
	}
	u.ClientID = c.ID
	return r.db.insertUser(u)
}

type clientRepo struct{ db *DB }

func (r clientRepo) Create(ctx context.Context, c *models.Client) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.insertClient(c)
}

func (r clientRepo) FindByID(ctx context.Context, id uint) (*models.Client, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	c, ok := r.db.clients[id]
	if !ok {
		return nil, notFound("client")
	}
	return &c, nil
}

func (r clientRepo) FindByExternalID(ctx context.Context, id uuid.UUID) (*models.Client, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, c := range r.db.clients {
		if c.IsActive && c.ExternalID == id {
			return &c, nil
		}
	}
	return nil, notFound("client")
}

func (r clientRepo) FindActiveByName(ctx context.Context, name string) (*models.Client, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	for _, c := range r.db.clients {
		if c.IsActive && c.Name == name {
			return &c, nil
		}
	}
	return nil, notFound("client")
}

func (r clientRepo) ListActive(ctx context.Context) ([]models.Client, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []models.Client
	for _, c := range r.db.clients {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r clientRepo) Update(ctx context.Context, id uint, p store.ClientPatch) (*models.Client, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.clients[id]
	if !ok {
		return nil, notFound("client")
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.BotTelegram != nil {
		c.BotTelegram = *p.BotTelegram
	}
	if p.BotToken != nil {
		c.BotToken = *p.BotToken
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if c.IsActive && r.db.clientNameTaken(c.Name, id) {
		return nil, conflict("client")
	}
	c.UpdatedAt = r.db.now()
	r.db.clients[id] = c
	return &c, nil
}

func (r clientRepo) Deactivate(ctx context.Context, id uint) (*models.Client, error) {
	inactive := false
	return r.Update(ctx, id, store.ClientPatch{IsActive: &inactive})
}

type userRepo struct{ db *DB }

func (r userRepo) Create(ctx context.Context, u *models.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.insertUser(u)
}

func (r userRepo) FindByID(ctx context.Context, id uint) (*models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, notFound("user")
	}
	return &u, nil
}

func (r userRepo) FindByIDs(ctx context.Context, ids []uint) ([]models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := r.db.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r userRepo) findActive(match func(models.User) bool) (*models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var found *models.User
	for _, u := range r.db.users {
		if u.IsActive && match(u) && (found == nil || u.ID < found.ID) {
			found = &u
		}
	}
	if found == nil {
		return nil, notFound("user")
	}
	return found, nil
}

func (r userRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findActive(func(u models.User) bool { return u.Email == email })
}

func (r userRepo) FindByTelegramUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findActive(func(u models.User) bool { return strings.EqualFold(u.TelegramUsername, username) })
}

func (r userRepo) FindByTelegramChatID(ctx context.Context, chatID string) (*models.User, error) {
	return r.findActive(func(u models.User) bool { return u.TelegramChatID == chatID })
}

func (r userRepo) ListByClient(ctx context.Context, clientID uint) ([]models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []models.User
	for _, u := range r.db.users {
		if u.IsActive && u.ClientID == clientID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r userRepo) Update(ctx context.Context, id uint, p store.UserPatch) (*models.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, notFound("user")
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.PasswordHash != nil {
		u.PasswordHash = p.PasswordHash
	}
	if p.TelegramChatID != nil {
		u.TelegramChatID = *p.TelegramChatID
	}
	if p.TelegramUsername != nil {
		u.TelegramUsername = *p.TelegramUsername
	}
	if p.TelegramFirstName != nil {
		u.TelegramFirstName = *p.TelegramFirstName
	}
	if p.TelegramLastName != nil {
		u.TelegramLastName = *p.TelegramLastName
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	if u.IsActive && r.db.userIdentityTaken(u.Email, u.TelegramUsername, id) {
		return nil, conflict("user")
	}
	u.UpdatedAt = r.db.now()
	r.db.users[id] = u
	return &u, nil
}

func (r userRepo) Deactivate(ctx context.Context, id uint) (*models.User, error) {
	inactive := false
	return r.Update(ctx, id, store.UserPatch{IsActive: &inactive})
}

type expenseRepo struct{ db *DB }

func (r expenseRepo) Create(ctx context.Context, e *models.Expense) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := r.db.now()
	e.ID = r.db.id()
	if e.Category == "" {
		e.Category = models.CategoryOther
	}
	e.CreatedAt, e.UpdatedAt = now, now
	e.User = nil
	r.db.expenses[e.ID] = *e
	return nil
}

func (r expenseRepo) FindByID(ctx context.Context, id uint) (*models.Expense, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	e, ok := r.db.expenses[id]
	if !ok {
		return nil, notFound("expense")
	}
	return &e, nil
}

func (r expenseRepo) Update(ctx context.Context, id uint, p store.ExpensePatch) (*models.Expense, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.expenses[id]
	if !ok {
		return nil, notFound("expense")
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Note != nil {
		e.Note = *p.Note
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	e.UpdatedAt = r.db.now()
	r.db.expenses[id] = e
	return &e, nil
}

func (r expenseRepo) Delete(ctx context.Context, id uint) (*models.Expense, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e, ok := r.db.expenses[id]
	if !ok {
		return nil, notFound("expense")
	}
	delete(r.db.expenses, id)
	return &e, nil
}

func matches(e models.Expense, f store.ExpenseFilter) bool {
	if e.ClientID != f.ClientID {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.From != nil && e.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Date.After(*f.To) {
		return false
	}
	return true
}

func (r expenseRepo) filtered(f store.ExpenseFilter) []models.Expense {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []models.Expense
	for _, e := range r.db.expenses {
		if matches(e, f) {
			out = append(out, e)
		}
	}
	return out
}

func (r expenseRepo) List(ctx context.Context, f store.ExpenseFilter, p store.Page) ([]models.Expense, int64, error) {
	rows := r.filtered(f)
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.After(rows[j].Date)
		}
		return rows[i].ID > rows[j].ID
	})
	total := int64(len(rows))
	if p.Offset < 0 || p.Offset >= len(rows) {
		return nil, total, nil
	}
	end := len(rows)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return rows[p.Offset:end], total, nil
}

func (r expenseRepo) Summarize(ctx context.Context, f store.ExpenseFilter) (store.Totals, []store.CategoryTotal, error) {
	var totals store.Totals
	byCat := map[models.Category]*store.CategoryTotal{}
	for _, e := range r.filtered(f) {
		totals.Total += e.Amount
		totals.Count++
		ct, ok := byCat[e.Category]
		if !ok {
			ct = &store.CategoryTotal{Category: e.Category}
			byCat[e.Category] = ct
		}
		ct.Total += e.Amount
		ct.Count++
	}
	breakdown := make([]store.CategoryTotal, 0, len(byCat))
	for _, ct := range byCat {
		breakdown = append(breakdown, *ct)
	}
	sort.Slice(breakdown, func(i, j int) bool {
		if breakdown[i].Total != breakdown[j].Total {
			return breakdown[i].Total > breakdown[j].Total
		}
		return breakdown[i].Category < breakdown[j].Category
	})
	return totals, breakdown, nil
}
