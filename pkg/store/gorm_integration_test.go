package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"dompet/models"
	"dompet/pkg/apperr"
	"dompet/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	db, err := store.OpenFromEnv()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(db) })
	require.NoError(t, store.Migrate(db))
	return store.NewGorm(db)
}

func TestGormTenantFlow(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	c := &models.Client{Name: fmt.Sprintf("it-%d", suffix), IsActive: true}
	u := &models.User{Email: fmt.Sprintf("it-%d@example.com", suffix), IsActive: true}
	require.NoError(t, st.Registrar.RegisterOwner(ctx, c, u))
	assert.NotZero(t, c.ID)
	assert.Equal(t, c.ID, u.ClientID)

	// name is unique among active clients
	err := st.Clients.Create(ctx, &models.Client{Name: c.Name, IsActive: true})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// a failed second registration leaves no orphan client
	dupName := fmt.Sprintf("it-orphan-%d", suffix)
	err = st.Registrar.RegisterOwner(ctx, &models.Client{Name: dupName, IsActive: true}, &models.User{Email: u.Email, IsActive: true})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	_, err = st.Clients.FindActiveByName(ctx, dupName)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	day := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, amt := range []int64{15000, 25000, 5000} {
		cat := models.CategoryFood
		if i == 1 {
			cat = models.CategoryTransport
		}
		require.NoError(t, st.Expenses.Create(ctx, &models.Expense{ClientID: c.ID, UserID: u.ID, Amount: amt, Category: cat, Date: day.Add(time.Duration(i) * time.Hour)}))
	}
	f := store.ExpenseFilter{ClientID: c.ID}
	rows, total, err := st.Expenses.List(ctx, f, store.Page{Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(5000), rows[0].Amount)

	totals, breakdown, err := st.Expenses.Summarize(ctx, f)
	require.NoError(t, err)
	assert.EqualValues(t, 45000, totals.Total)
	require.Len(t, breakdown, 2)
	assert.Equal(t, models.CategoryTransport, breakdown[0].Category)

	_, err = st.Clients.Deactivate(ctx, c.ID)
	require.NoError(t, err)
	_, err = st.Clients.FindActiveByName(ctx, c.Name)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
