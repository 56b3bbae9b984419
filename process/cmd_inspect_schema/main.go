package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"dompet/pkg/config"

	"github.com/jackc/pgx/v5"
)

// requiredIndexes back the "unique among active rows" rules of clients and users.
var requiredIndexes = []string{
	"ux_clients_name_active",
	"ux_users_email_active",
	"ux_users_telegram_username_lower_active",
}

// Prints the foreign keys and partial unique indexes of the public schema and
// exits non-zero when an index the store relies on is missing.
func main() {
	flag.Parse()
	config.LoadDotEnv()
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer conn.Close(context.Background())

	if err := printForeignKeys(ctx, conn); err != nil {
		log.Fatal(err)
	}
	missing, err := printIndexes(ctx, conn)
	if err != nil {
		log.Fatal(err)
	}
	if len(missing) > 0 {
		fmt.Printf("MISSING indexes: %s (run `dompet migrate`)\n", strings.Join(missing, ", "))
		os.Exit(1)
	}
}

func printForeignKeys(ctx context.Context, conn *pgx.Conn) error {
	rows, err := conn.Query(ctx, `
		SELECT
		  con.conname AS constraint_name,
		  rel.relname AS table_name,
		  array_agg(att.attname::text ORDER BY u.ord) AS src_columns,
		  confrel.relname AS referenced_table,
		  pg_get_constraintdef(con.oid) AS definition
		FROM pg_constraint con
		JOIN pg_class rel ON rel.oid = con.conrelid
		JOIN pg_class confrel ON confrel.oid = con.confrelid
		JOIN unnest(con.conkey) WITH ORDINALITY AS u(attnum, ord) ON true
		JOIN pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = u.attnum
		WHERE con.contype = 'f'
		GROUP BY con.oid, con.conname, rel.relname, confrel.relname
		ORDER BY rel.relname, constraint_name`)
	if err != nil {
		return fmt.Errorf("query constraints: %w", err)
	}
	defer rows.Close()

	fmt.Println("Foreign keys:")
	for rows.Next() {
		var cname, table, reftable, def string
		var cols []string
		if err := rows.Scan(&cname, &table, &cols, &reftable, &def); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		fmt.Printf("- %s: %s(%s) -> %s\n    def: %s\n", cname, table, strings.Join(cols, ", "), reftable, def)
	}
	return rows.Err()
}

// printIndexes lists partial unique indexes and returns the required ones not found.
func printIndexes(ctx context.Context, conn *pgx.Conn) ([]string, error) {
	rows, err := conn.Query(ctx, `
		SELECT indexname, tablename, indexdef
		FROM pg_indexes
		WHERE schemaname = 'public' AND indexdef ILIKE '%UNIQUE%WHERE%'
		ORDER BY tablename, indexname`)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	defer rows.Close()

	found := map[string]bool{}
	fmt.Println("Partial unique indexes:")
	for rows.Next() {
		var name, table, def string
		if err := rows.Scan(&name, &table, &def); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		found[name] = true
		fmt.Printf("- %s on %s\n    def: %s\n", name, table, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var missing []string
	for _, n := range requiredIndexes {
		if !found[n] {
			missing = append(missing, n)
		}
	}
	return missing, nil
}
