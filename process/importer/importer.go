// Package importer loads expenses from CSV files, either once over a
// directory or continuously by watching it.
//
// Files carry a header row. Recognised columns are date, amount, category,
// note and telegram_username; only amount and category are required.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"dompet/models"
	"dompet/pkg/apperr"
	"dompet/pkg/auth"
	"dompet/pkg/expense"
	"dompet/pkg/store"
	"dompet/pkg/telegram"

	"github.com/fsnotify/fsnotify"
)

// ProcessedDir is where imported files are moved, relative to the scanned directory.
const ProcessedDir = "processed"

// RowError reports one rejected line.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

// Result summarises one file.
type Result struct {
	File     string
	Imported int
	Rejected []RowError
}

// Options configure an Importer.
type Options struct {
	// DefaultUser owns rows without a telegram_username. Zero means the
	// first active user of the client.
	DefaultUser uint
	DryRun      bool
	Workers     int
}

type Importer struct {
	users    store.UserRepository
	expenses *expense.Service
	client   *models.Client
	opts     Options
	log      *slog.Logger

	mu     sync.Mutex
	byName map[string]*models.User
	owner  *models.User
}

func New(st *store.Store, expenses *expense.Service, client *models.Client, opts Options, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	return &Importer{
		users:    st.Users,
		expenses: expenses,
		client:   client,
		opts:     opts,
		log:      logger.With("component", "importer", "client_id", client.ID),
		byName:   map[string]*models.User{},
	}
}

// isSupportedExt reports whether name is an importable file.
func isSupportedExt(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isSupportedExt(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// defaultUser resolves the owner of rows without a username.
func (im *Importer) defaultUser(ctx context.Context) (*models.User, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.owner != nil {
		return im.owner, nil
	}
	if im.opts.DefaultUser != 0 {
		u, err := im.users.FindByID(ctx, im.opts.DefaultUser)
		if err != nil {
			return nil, err
		}
		if u.ClientID != im.client.ID {
			return nil, apperr.Forbidden("user belongs to another client")
		}
		im.owner = u
		return u, nil
	}
	users, err := im.users.ListByClient(ctx, im.client.ID)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, apperr.NotFound("client has no active users")
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	im.owner = &users[0]
	return im.owner, nil
}

func (im *Importer) userByUsername(ctx context.Context, name string) (*models.User, error) {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
	im.mu.Lock()
	u, ok := im.byName[name]
	im.mu.Unlock()
	if ok {
		return u, nil
	}
	u, err := im.users.FindByTelegramUsername(ctx, name)
	if err != nil {
		return nil, err
	}
	if u.ClientID != im.client.ID {
		return nil, apperr.Forbidden("user belongs to another client")
	}
	im.mu.Lock()
	im.byName[name] = u
	im.mu.Unlock()
	return u, nil
}

// ImportReader imports every row of r. Bad rows are collected, not fatal.
func (im *Importer) ImportReader(ctx context.Context, name string, r io.Reader) (*Result, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"amount", "category"} {
		if _, ok := cols[need]; !ok {
			return nil, fmt.Errorf("missing %q column", need)
		}
	}
	field := func(rec []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	res := &Result{File: name}
	line := 1
	for {
		rec, err := cr.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Rejected = append(res.Rejected, RowError{Line: line, Err: err})
			continue
		}
		if err := im.importRow(ctx, rec, field); err != nil {
			res.Rejected = append(res.Rejected, RowError{Line: line, Err: err})
			continue
		}
		res.Imported++
	}
	return res, nil
}

func (im *Importer) importRow(ctx context.Context, rec []string, field func([]string, string) string) error {
	raw := field(rec, "amount")
	amount, ok := expense.ParseAmount(strings.ReplaceAll(raw, "_", ""))
	if !ok {
		return fmt.Errorf("amount %q must be a positive whole number", raw)
	}
	var (
		u   *models.User
		err error
	)
	if name := field(rec, "telegram_username"); name != "" {
		u, err = im.userByUsername(ctx, name)
	} else {
		u, err = im.defaultUser(ctx)
	}
	if err != nil {
		return err
	}
	in := expense.CreateInput{
		Amount:   amount,
		Category: telegram.MapCategory(field(rec, "category")),
		Note:     field(rec, "note"),
		Date:     field(rec, "date"),
	}
	if im.opts.DryRun {
		return nil
	}
	_, err = im.expenses.Create(ctx, auth.Identity{UserID: u.ID, ClientID: im.client.ID}, in)
	return err
}

// ImportFile imports one file of dir and moves it to the processed directory
// when at least one row was stored.
func (im *Importer) ImportFile(ctx context.Context, dir, name string) (*Result, error) {
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	res, err := im.ImportReader(ctx, name, f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}
	if !im.opts.DryRun && res.Imported > 0 {
		if err := moveToProcessed(dir, name); err != nil {
			im.log.Warn("failed to move processed file", "file", name, "err", err)
		}
	}
	return res, nil
}

// logResult writes one line per file and one per rejected row.
func (im *Importer) logResult(res *Result) {
	im.log.Info("file imported", "file", res.File, "imported", res.Imported, "rejected", len(res.Rejected), "dry_run", im.opts.DryRun)
	for _, re := range res.Rejected {
		im.log.Warn("row rejected", "file", res.File, "line", re.Line, "err", re.Err)
	}
}

// runWorkerPool imports names from fileCh until it is closed.
func (im *Importer) runWorkerPool(ctx context.Context, dir string, fileCh <-chan string) []*Result {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*Result
	)
	for i := 0; i < im.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range fileCh {
				res, err := im.ImportFile(ctx, dir, name)
				if err != nil {
					im.log.Error("import failed", "file", name, "err", err)
					continue
				}
				im.logResult(res)
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].File < results[j].File })
	return results
}

// ScanDir imports every CSV currently in dir.
func (im *Importer) ScanDir(ctx context.Context, dir string) ([]*Result, error) {
	files, err := listFiles(dir)
	if err != nil {
		return nil, err
	}
	im.log.Info("scanning", "dir", dir, "files", len(files), "workers", im.opts.Workers)
	fileCh := make(chan string)
	go func() {
		defer close(fileCh)
		for _, f := range files {
			select {
			case fileCh <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return im.runWorkerPool(ctx, dir, fileCh), nil
}

// Watch imports files created in dir until ctx is done. Events are debounced
// so a file is read once its writes have settled.
func (im *Importer) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	im.log.Info("watching", "dir", dir)

	fileCh := make(chan string, 256)
	done := make(chan struct{})
	go func() {
		im.runWorkerPool(ctx, dir, fileCh)
		close(done)
	}()

	pending := map[string]time.Time{}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(fileCh)
			<-done
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				close(fileCh)
				<-done
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if isSupportedExt(name) {
				pending[name] = time.Now()
			}
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) > 300*time.Millisecond { // stable
					fileCh <- name
					delete(pending, name)
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				close(fileCh)
				<-done
				return nil
			}
			im.log.Warn("watch error", "err", err)
		}
	}
}

// moveToProcessed moves dir/name into dir/processed, falling back to
// copy and remove when rename fails.
func moveToProcessed(dir, name string) error {
	processed := filepath.Join(dir, ProcessedDir)
	if err := os.MkdirAll(processed, 0o755); err != nil {
		return err
	}
	src := filepath.Join(dir, name)
	dst := filepath.Join(processed, name)
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
