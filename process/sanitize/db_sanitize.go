// Package sanitize truncates application tables and can reseed the demo tenant.
package sanitize

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"dompet/pkg/config"
	"dompet/pkg/seed"
	"dompet/pkg/store"

	"gorm.io/gorm"
)

// DefaultTables are the application tables, children first.
const DefaultTables = "expenses,users,clients"

var nameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseTables splits a comma separated list and drops names that are not
// plain identifiers. Dropped names are returned separately.
func ParseTables(list string) (valid, skipped []string) {
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !nameRe.MatchString(p) {
			skipped = append(skipped, p)
			continue
		}
		valid = append(valid, p)
	}
	return valid, skipped
}

// TruncateStatement quotes the validated identifiers into one statement.
func TruncateStatement(tables []string) string {
	quoted := make([]string, 0, len(tables))
	for _, t := range tables {
		quoted = append(quoted, fmt.Sprintf("%q", t))
	}
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
}

// Run executes the db_sanitize CLI behavior.
func Run() {
	var (
		dryRun = flag.Bool("dry-run", true, "Don't perform destructive actions; show what would be done")
		yes    = flag.Bool("yes", false, "Confirm destructive action (required to actually truncate)")
		reseed = flag.Bool("reseed", false, "After truncation, migrate and reseed the demo client")
		tables = flag.String("tables", DefaultTables, "Comma-separated list of tables to truncate")
	)
	flag.Parse()

	config.LoadDotEnv()
	gdb, err := store.OpenFromEnv()
	if err != nil {
		log.Fatalf("db_sanitize: %v", err)
	}
	defer store.Close(gdb)

	wanted, skipped := ParseTables(*tables)
	for _, s := range skipped {
		log.Printf("warning: skipping invalid table name '%s'", s)
	}
	existing, err := presentTables(gdb, wanted)
	if err != nil {
		log.Fatal(err)
	}
	if len(existing) == 0 {
		log.Println("no requested tables present in the database; nothing to do")
		return
	}

	fmt.Println("Tables considered for truncation:")
	for _, t := range existing {
		fmt.Printf(" - %s\n", t)
	}
	if *dryRun {
		fmt.Println("dry-run enabled; no changes will be made. Use --dry-run=false --yes to execute.")
		return
	}
	if !*yes {
		fmt.Println("Destructive operation. Pass --yes to confirm execution. Aborting.")
		return
	}

	stmt := TruncateStatement(existing)
	log.Printf("Executing: %s", stmt)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := gdb.WithContext(ctx).Exec(stmt).Error; err != nil {
		log.Fatalf("truncate failed: %v", err)
	}
	log.Println("Truncate completed.")

	if *reseed {
		if err := store.Migrate(gdb); err != nil {
			log.Fatalf("migrate failed: %v", err)
		}
		created, err := seed.Demo(ctx, store.NewGorm(gdb), time.Now(), slog.Default())
		if err != nil {
			log.Fatalf("reseed failed: %v", err)
		}
		log.Printf("Reseed completed (created=%v).", created)
	}
}

// presentTables keeps the names that exist in the public schema, checked one
// by one with a bound parameter.
func presentTables(gdb *gorm.DB, wanted []string) ([]string, error) {
	var existing []string
	for _, t := range wanted {
		var cnt int64
		if err := gdb.Raw("SELECT count(*) FROM pg_tables WHERE schemaname = 'public' AND tablename = ?", t).Scan(&cnt).Error; err != nil {
			return nil, fmt.Errorf("failed to query pg_tables for %s: %w", t, err)
		}
		if cnt > 0 {
			existing = append(existing, t)
		} else {
			log.Printf("info: table %s not found, skipping", t)
		}
	}
	return existing, nil
}
