package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dompet/pkg/config"
	"dompet/pkg/expense"
	"dompet/pkg/store"
	"dompet/process/importer"
)

// Imports expense CSV files from a directory, optionally watching it for new files.
func main() {
	dir := flag.String("dir", "import", "directory to scan for CSV files")
	clientName := flag.String("client", "", "name of the active client the expenses belong to")
	userID := flag.Uint("user-id", 0, "user owning rows without telegram_username (default: first user of the client)")
	dryRun := flag.Bool("dry-run", false, "parse and resolve rows without storing them")
	watch := flag.Bool("watch", false, "watch the directory for new files")
	workers := flag.Int("workers", 0, "worker pool size (default NumCPU)")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if *clientName == "" {
		logger.Error("-client is required")
		os.Exit(2)
	}

	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "err", err)
		os.Exit(2)
	}
	db, err := store.Open(cfg.DBDSN)
	if err != nil {
		logger.Error("open db", "err", err)
		os.Exit(1)
	}
	defer store.Close(db)
	st := store.NewGorm(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := st.Clients.FindActiveByName(ctx, *clientName)
	if err != nil {
		logger.Error("client not found", "client", *clientName, "err", err)
		os.Exit(1)
	}

	im := importer.New(st, expense.New(st, cfg.Location, logger), client, importer.Options{
		DefaultUser: *userID,
		DryRun:      *dryRun,
		Workers:     *workers,
	}, logger)

	results, err := im.ScanDir(ctx, *dir)
	if err != nil {
		logger.Error("scan failed", "dir", *dir, "err", err)
		os.Exit(1)
	}
	var imported, rejected int
	for _, r := range results {
		imported += r.Imported
		rejected += len(r.Rejected)
	}
	logger.Info("scan complete", "files", len(results), "imported", imported, "rejected", rejected)

	if *watch {
		if err := im.Watch(ctx, *dir); err != nil {
			logger.Error("watch failed", "err", err)
			os.Exit(1)
		}
	}
}
