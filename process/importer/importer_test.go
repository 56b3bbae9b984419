package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dompet/models"
	"dompet/pkg/expense"
	"dompet/pkg/store"
	"dompet/pkg/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	st     *store.Store
	client *models.Client
	owner  *models.User
	budi   *models.User
	im     *Importer
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()
	_, st := memory.New()
	c := &models.Client{Name: "Acme"}
	require.NoError(t, st.Clients.Create(ctx, c))
	owner := &models.User{ClientID: c.ID, Email: "owner@example.com"}
	require.NoError(t, st.Users.Create(ctx, owner))
	budi := &models.User{ClientID: c.ID, TelegramUsername: "budi"}
	require.NoError(t, st.Users.Create(ctx, budi))

	other := &models.Client{Name: "Other"}
	require.NoError(t, st.Clients.Create(ctx, other))
	require.NoError(t, st.Users.Create(ctx, &models.User{ClientID: other.ID, TelegramUsername: "stranger"}))

	im := New(st, expense.New(st, time.UTC, nil), c, opts, nil)
	return &fixture{st: st, client: c, owner: owner, budi: budi, im: im}
}

func (f *fixture) all(t *testing.T) []models.Expense {
	t.Helper()
	rows, _, err := f.st.Expenses.List(context.Background(), store.ExpenseFilter{ClientID: f.client.ID}, store.Page{Limit: 100})
	require.NoError(t, err)
	return rows
}

const sample = `date,amount,category,note,telegram_username
2024-03-01,15000,makan,nasi goreng,
2024-03-02,25000.00,Transport,ojek,@budi
2024-03-03,12.5,food,bad amount,
2024-03-04,1000,food,someone else,stranger
2024-03-05,1000,food,nobody,ghost
not-a-date,1000,food,bad date,
`

func TestImportReader(t *testing.T) {
	f := newFixture(t, Options{})
	res, err := f.im.ImportReader(context.Background(), "sample.csv", strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	require.Len(t, res.Rejected, 4)
	assert.Equal(t, 4, res.Rejected[0].Line)

	rows := f.all(t)
	require.Len(t, rows, 2)
	// newest first
	assert.Equal(t, f.budi.ID, rows[0].UserID)
	assert.Equal(t, models.CategoryTransport, rows[0].Category)
	assert.Equal(t, int64(25000), rows[0].Amount)
	assert.Equal(t, f.owner.ID, rows[1].UserID)
	assert.Equal(t, models.CategoryFood, rows[1].Category)
}

func TestImportReaderNeedsColumns(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.im.ImportReader(context.Background(), "x.csv", strings.NewReader("date,note\n2024-03-01,x\n"))
	assert.Error(t, err)
}

func TestDryRunStoresNothing(t *testing.T) {
	f := newFixture(t, Options{DryRun: true})
	res, err := f.im.ImportReader(context.Background(), "sample.csv", strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Empty(t, f.all(t))
}

func TestScanDirMovesImportedFiles(t *testing.T) {
	f := newFixture(t, Options{Workers: 2})
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("amount,category\n1000,food\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.csv"), []byte("amount,category\n2000,bensin\n3000,obat\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	results, err := f.im.ScanDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a.csv", results[0].File)
	assert.Equal(t, 2, results[1].Imported)
	assert.Len(t, f.all(t), 3)

	_, err = os.Stat(filepath.Join(dir, ProcessedDir, "b.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "b.csv"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	assert.NoError(t, err)
}

func TestWatchImportsNewFiles(t *testing.T) {
	f := newFixture(t, Options{Workers: 1})
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.im.Watch(ctx, dir) }()

	// give the watcher time to register
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.csv"), []byte("amount,category\n5000,food\n"), 0o644))

	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, ProcessedDir, "late.csv"))
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Len(t, f.all(t), 1)
}
