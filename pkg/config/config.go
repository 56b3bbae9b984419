// Package config loads the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const devJWTSecret = "dev-insecure-secret-change"

type Config struct {
	Env  string
	Port string

	StoreDriver   string
	DBDSN         string
	DBAutoMigrate bool
	DBSeedDemo    bool

	JWTSecret []byte
	JWTTTL    time.Duration

	CookieName     string
	CookieSecure   bool
	CookieSameSite http.SameSite

	CORSAllowedOrigins []string

	PublicBaseURL         string
	TelegramWebhookSecret string
	TelegramAPIEndpoint   string

	RedisURL     string
	BotRateLimit int

	Location *time.Location
	LogLevel slog.Level
}

// LoadDotEnv loads ./.env if present. Variables already set in the
// environment win.
func LoadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	_ = godotenv.Load()
}

// Load reads the configuration. Defaults favour local development.
func Load() (*Config, error) {
	env := getEnv("APP_ENV", "development")
	prod := env == "production"

	cfg := &Config{
		Env:         env,
		Port:        getEnv("PORT", "8081"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),

		DBDSN:         getEnv("DB_DSN", ""),
		DBAutoMigrate: getEnvBool("DB_AUTO_MIGRATE", true),
		DBSeedDemo:    getEnvBool("DB_SEED_DEMO", false),

		JWTSecret: []byte(getEnv("JWT_SECRET", devJWTSecret)),
		JWTTTL:    getEnvDuration("JWT_TTL", 7*24*time.Hour),

		CookieName:     getEnv("COOKIE_NAME", "authToken"),
		CookieSecure:   getEnvBool("COOKIE_SECURE", prod),
		CookieSameSite: sameSiteDefault(prod),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),

		PublicBaseURL:         strings.TrimSuffix(getEnv("PUBLIC_BASE_URL", ""), "/"),
		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		TelegramAPIEndpoint:   getEnv("TELEGRAM_API_ENDPOINT", ""),

		RedisURL:     getEnv("REDIS_URL", ""),
		BotRateLimit: getEnvInt("BOT_RATE_LIMIT", 20),

		Location: time.Local,
		LogLevel: slog.LevelInfo,
	}

	if v := os.Getenv("COOKIE_SAMESITE"); v != "" {
		ss, err := parseSameSite(v)
		if err != nil {
			return nil, err
		}
		cfg.CookieSameSite = ss
	}
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
		}
		cfg.Location = loc
	}
	if lv := os.Getenv("LOG_LEVEL"); lv != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lv)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", lv, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid PORT %q", c.Port))
	}
	switch c.StoreDriver {
	case "postgres":
		if c.DBDSN == "" {
			problems = append(problems, "DB_DSN is required when STORE_DRIVER=postgres")
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("invalid STORE_DRIVER %q (postgres|memory)", c.StoreDriver))
	}
	if len(c.JWTSecret) == 0 {
		problems = append(problems, "JWT_SECRET must not be empty")
	}
	if c.IsProduction() && string(c.JWTSecret) == devJWTSecret {
		problems = append(problems, "JWT_SECRET must be set in production")
	}
	if c.JWTTTL <= 0 {
		problems = append(problems, "JWT_TTL must be positive")
	}
	if c.PublicBaseURL != "" {
		if u, err := url.Parse(c.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			problems = append(problems, fmt.Sprintf("invalid PUBLIC_BASE_URL %q", c.PublicBaseURL))
		}
	}
	if c.RedisURL != "" {
		if _, err := url.Parse(c.RedisURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid REDIS_URL: %v", err))
		}
	}
	if c.BotRateLimit < 0 {
		problems = append(problems, "BOT_RATE_LIMIT must not be negative")
	}

	if len(problems) > 0 {
		return errors.New("configuration errors: " + strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

// UsesDevSecret reports whether the JWT secret is the development fallback.
func (c *Config) UsesDevSecret() bool { return string(c.JWTSecret) == devJWTSecret }

// HTTPAddr is the listen address.
func (c *Config) HTTPAddr() string { return ":" + c.Port }

// WebhookURL is the public Telegram callback, empty when no base URL is set.
func (c *Config) WebhookURL() string {
	if c.PublicBaseURL == "" {
		return ""
	}
	return c.PublicBaseURL + "/api/telegram/webhook"
}

func sameSiteDefault(prod bool) http.SameSite {
	if prod {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

func parseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	}
	return 0, fmt.Errorf("invalid COOKIE_SAMESITE %q (strict|lax|none)", v)
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "false", "0", "no":
		return false
	case "true", "1", "yes":
		return true
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
