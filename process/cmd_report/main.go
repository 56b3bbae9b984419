package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"dompet/pkg/config"
	"dompet/pkg/store"
	"dompet/process/report"
)

func main() {
	client := flag.String("client", "Demo Client", "client name to report for")
	month := flag.String("month", time.Now().Format("2006-01"), "month to report (YYYY-MM)")
	list := flag.Bool("list", false, "list matching rows")
	tz := flag.String("tz", "", "IANA time zone for month bounds (default TIMEZONE or UTC)")
	flag.Parse()

	config.LoadDotEnv()
	db, err := store.OpenFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer store.Close(db)

	name := *tz
	if name == "" {
		name = os.Getenv("TIMEZONE")
	}
	loc := time.UTC
	if name != "" {
		if loc, err = time.LoadLocation(name); err != nil {
			fmt.Fprintf(os.Stderr, "invalid time zone %q: %v\n", name, err)
			os.Exit(2)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	r, err := report.Build(ctx, store.NewGorm(db), *client, *month, loc, *list)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	report.Write(os.Stdout, r)
}
