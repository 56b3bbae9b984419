package user

import (
	"context"
	"errors"
	"testing"

	"dompet/models"
	"dompet/pkg/apperr"
	"dompet/pkg/auth"
	"dompet/pkg/store"
	"dompet/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setup(t *testing.T) (*Service, *store.Store, auth.Identity, auth.Identity) {
	t.Helper()
	_, st := memory.New()
	ctx := context.Background()
	a := &models.Client{Name: "Acme"}
	b := &models.Client{Name: "Beta"}
	require.NoError(t, st.Clients.Create(ctx, a))
	require.NoError(t, st.Clients.Create(ctx, b))
	return New(st, bcrypt.MinCost, nil), st, auth.Identity{UserID: 100, ClientID: a.ID}, auth.Identity{UserID: 200, ClientID: b.ID}
}

func TestCreateFoldsTelegramUsername(t *testing.T) {
	svc, _, acme, _ := setup(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, acme, CreateInput{TelegramUsername: "@Budi_X"})
	require.NoError(t, err)
	assert.Equal(t, "budi_x", u.TelegramUsername)

	_, err = svc.Create(ctx, acme, CreateInput{TelegramUsername: "budi_X"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestCreateForcesCallerTenant(t *testing.T) {
	svc, _, acme, _ := setup(t)
	u, err := svc.Create(context.Background(), acme, CreateInput{Email: " New@Example.com", Password: "secret1", TelegramUsername: "@newbie"})
	require.NoError(t, err)
	assert.Equal(t, acme.ClientID, u.ClientID)
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, "newbie", u.TelegramUsername)
	assert.True(t, u.HasPassword())
	assert.True(t, u.IsActive)
}

func TestCreateChatOnly(t *testing.T) {
	svc, _, acme, _ := setup(t)
	u, err := svc.Create(context.Background(), acme, CreateInput{TelegramUsername: "chatter", TelegramChatID: "42"})
	require.NoError(t, err)
	assert.False(t, u.HasPassword())
	assert.Empty(t, u.Email)
}

func TestCreateValidation(t *testing.T) {
	svc, _, acme, _ := setup(t)
	_, err := svc.Create(context.Background(), acme, CreateInput{Password: "123"})
	var ve *apperr.ValidationError
	require.True(t, errors.As(err, &ve))
	fields := map[string]bool{}
	for _, f := range ve.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["password"])
	assert.True(t, fields["email"])
}

func TestCreateDuplicateEmailConflicts(t *testing.T) {
	svc, _, acme, beta := setup(t)
	_, err := svc.Create(context.Background(), acme, CreateInput{Email: "dup@example.com"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), beta, CreateInput{Email: "dup@example.com"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestCrossTenantAccessIsForbidden(t *testing.T) {
	svc, _, acme, beta := setup(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, acme, CreateInput{Email: "a@example.com"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, beta, u.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	name := "hijack"
	_, err = svc.Update(ctx, beta, u.ID, UpdateInput{TelegramUsername: &name})
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	_, err = svc.Deactivate(ctx, beta, u.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	got, err := svc.Get(ctx, acme, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestUpdateAndDeactivate(t *testing.T) {
	svc, _, acme, _ := setup(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, acme, CreateInput{Email: "a@example.com"})
	require.NoError(t, err)

	first, pass := "Ann", "newpass"
	upd, err := svc.Update(ctx, acme, u.ID, UpdateInput{TelegramFirstName: &first, Password: &pass})
	require.NoError(t, err)
	assert.Equal(t, "Ann", upd.TelegramFirstName)
	assert.NoError(t, bcrypt.CompareHashAndPassword(upd.PasswordHash, []byte("newpass")))

	gone, err := svc.Deactivate(ctx, acme, u.ID)
	require.NoError(t, err)
	assert.False(t, gone.IsActive)

	list, err := svc.List(ctx, acme)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Get(ctx, acme, 9999)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestGetWithClient(t *testing.T) {
	svc, _, acme, _ := setup(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, acme, CreateInput{TelegramUsername: "joined"})
	require.NoError(t, err)

	view, err := svc.GetWithClient(ctx, acme, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", view.Client.Name)
	assert.Equal(t, "joined", view.TelegramUsername)
}
