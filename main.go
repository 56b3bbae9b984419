package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dompet/pkg/config"
	"dompet/pkg/ratelimit"
	"dompet/pkg/telegram"

	"github.com/gin-gonic/gin"
)

func main() {
	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	if cfg.UsesDevSecret() {
		logger.Warn("JWT_SECRET not set, using the development secret")
	}

	// `./dompet migrate` applies the schema (and the demo seed when enabled) and exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := migrateOnly(context.Background(), cfg, logger); err != nil {
			logger.Error("migration failed", "err", err)
			os.Exit(1)
		}
		logger.Info("migration and seeding completed")
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	return slog.New(h).With("service", "dompet")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter, closeLimiter := newLimiter(ctx, cfg, logger)
	defer closeLimiter()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	sender := telegram.NewBotSender(cfg.TelegramAPIEndpoint, 10*time.Second)
	app := newServer(cfg, st, sender, limiter, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           app.router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}

// newLimiter connects the Redis limiter when REDIS_URL is set. Without Redis
// (or when it is unreachable at startup) commands are not limited.
func newLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Limiter, func()) {
	if cfg.RedisURL == "" {
		return ratelimit.Noop{}, func() {}
	}
	rl, err := ratelimit.NewRedis(cfg.RedisURL, cfg.BotRateLimit, time.Minute)
	if err != nil {
		logger.Warn("rate limiter disabled", "err", err)
		return ratelimit.Noop{}, func() {}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rl.Ping(pingCtx); err != nil {
		logger.Warn("redis unreachable, rate limiter disabled", "err", err)
		_ = rl.Close()
		return ratelimit.Noop{}, func() {}
	}
	logger.Info("bot rate limiter enabled", "per_minute", cfg.BotRateLimit)
	return rl, func() { _ = rl.Close() }
}
