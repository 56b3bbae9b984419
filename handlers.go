package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dompet/models"
	"dompet/pkg/apperr"
	"dompet/pkg/auth"
	"dompet/pkg/config"
	"dompet/pkg/expense"
	"dompet/pkg/ratelimit"
	"dompet/pkg/store"
	"dompet/pkg/telegram"
	"dompet/pkg/user"
	"dompet/pkg/validate"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

type server struct {
	cfg      *config.Config
	log      *slog.Logger
	clients  store.ClientRepository
	auth     *auth.Service
	users    *user.Service
	expenses *expense.Service
	bot      *telegram.Dispatcher
}

func newServer(cfg *config.Config, st *store.Store, sender telegram.Sender, limiter ratelimit.Limiter, logger *slog.Logger) *server {
	expenses := expense.New(st, cfg.Location, logger)
	return &server{
		cfg:      cfg,
		log:      logger.With("component", "http"),
		clients:  st.Clients,
		auth:     auth.New(st, auth.Options{Secret: cfg.JWTSecret, TTL: cfg.JWTTTL}, logger),
		users:    user.New(st, 0, logger),
		expenses: expenses,
		bot: telegram.NewDispatcher(st, expenses, sender, limiter, telegram.Options{
			WebhookURL:    cfg.WebhookURL(),
			WebhookSecret: cfg.TelegramWebhookSecret,
			Location:      cfg.Location,
		}, logger),
	}
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))
	if mw := corsMiddleware(s.cfg.CORSAllowedOrigins); mw != nil {
		r.Use(mw)
	}
	s.setupRoutes(r)
	return r
}

// corsMiddleware allows credentialed requests from origins. It returns nil
// when no origin is configured. "*" reflects any origin.
func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return nil
	}
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cc.AllowOriginFunc = func(string) bool { return true }
			return cors.New(cc)
		}
	}
	cc.AllowOrigins = origins
	return cors.New(cc)
}

func (s *server) setupRoutes(r *gin.Engine) {
	r.GET("/health", s.healthHandler)

	api := r.Group("/api")
	authGroup := api.Group("/auth")
	authGroup.POST("/register", s.registerHandler)
	authGroup.POST("/login", s.loginHandler)
	authGroup.POST("/logout", s.jwtAuthMiddleware(), s.logoutHandler)
	authGroup.POST("/me", s.jwtAuthMiddleware(), s.meHandler)

	api.POST("/telegram/webhook", s.webhookHandler)

	gated := api.Group("", s.jwtAuthMiddleware())
	gated.POST("/telegram/set-webhook", s.setWebhookHandler)

	gated.GET("/clients/me", s.getClientHandler)
	gated.PUT("/clients/me", s.updateClientHandler)

	gated.POST("/expenses", s.createExpenseHandler)
	gated.GET("/expenses/summary", s.expenseSummaryHandler)
	gated.GET("/expenses/list", s.listExpensesHandler)
	gated.GET("/expenses/:id", s.getExpenseHandler)
	gated.PUT("/expenses/:id", s.updateExpenseHandler)
	gated.DELETE("/expenses/:id", s.deleteExpenseHandler)

	gated.POST("/users", s.createUserHandler)
	gated.GET("/users", s.listUsersHandler)
	gated.GET("/users/:id", s.getUserHandler)
	gated.PUT("/users/:id", s.updateUserHandler)
	gated.DELETE("/users/:id", s.deleteUserHandler)
}

// requestLogger writes one line per request.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		log.Info("request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// respondError writes err with the status of its kind. Internal causes are
// logged, never shown.
func (s *server) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	body := gin.H{"success": false}

	var ve *apperr.ValidationError
	var ae *apperr.Error
	switch {
	case errors.As(err, &ve):
		body["error"] = "validation failed"
		body["fields"] = ve.Fields
	case kind == apperr.KindInternal:
		s.log.Error("request failed", "path", c.Request.URL.Path, "err", err)
		body["error"] = "internal server error"
	case errors.As(err, &ae):
		if kind == apperr.KindUpstream {
			s.log.Warn("upstream failure", "path", c.Request.URL.Path, "err", err)
		}
		body["error"] = ae.Message
	default:
		body["error"] = err.Error()
	}
	c.AbortWithStatusJSON(kind.Status(), body)
}

// bindJSON decodes the body into dst and reports decode problems as validation errors.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			return apperr.Invalid(te.Field, "must be of type "+te.Type.String())
		}
		return apperr.Invalid("body", "must be a valid JSON object")
	}
	return nil
}

func paramID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Invalid("id", "must be a positive integer")
	}
	return uint(id), nil
}

// envelope is the response shape of the /users endpoints.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Meta    meta   `json:"meta"`
}

type meta struct {
	Total      *int64    `json:"total,omitempty"`
	Page       *int      `json:"page,omitempty"`
	Limit      *int      `json:"limit,omitempty"`
	TotalPages *int      `json:"totalPages,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func respondEnvelope(c *gin.Context, status int, message string, data any, total *int64) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data, Meta: meta{Total: total, Timestamp: time.Now().UTC()}})
}

func (s *server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "dompet", "env": s.cfg.Env})
}

// expenses

func (s *server) createExpenseHandler(c *gin.Context) {
	var req expense.CreateInput
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	e, err := s.expenses.Create(ctx, callerFrom(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (s *server) expenseSummaryHandler(c *gin.Context) {
	var q expense.Query
	_ = c.ShouldBindQuery(&q)
	ctx, cancel := requestContext(c)
	defer cancel()
	sum, err := s.expenses.Summary(ctx, callerFrom(c).ClientID, q)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *server) listExpensesHandler(c *gin.Context) {
	var q expense.Query
	_ = c.ShouldBindQuery(&q)
	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := s.expenses.List(ctx, callerFrom(c).ClientID, q)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *server) getExpenseHandler(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	rec, err := s.expenses.Get(ctx, callerFrom(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *server) updateExpenseHandler(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var req expense.UpdateInput
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	rec, err := s.expenses.Update(ctx, callerFrom(c), id, req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *server) deleteExpenseHandler(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	e, err := s.expenses.Delete(ctx, callerFrom(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// users

func (s *server) createUserHandler(c *gin.Context) {
	var req user.CreateInput
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := s.users.Create(ctx, callerFrom(c), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondEnvelope(c, http.StatusCreated, "User created successfully", u, nil)
}

func (s *server) listUsersHandler(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()
	users, err := s.users.List(ctx, callerFrom(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	total := int64(len(users))
	respondEnvelope(c, http.StatusOK, "Users retrieved successfully", users, &total)
}

func (s *server) getUserHandler(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := s.users.GetWithClient(ctx, callerFrom(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondEnvelope(c, http.StatusOK, "User retrieved successfully", u, nil)
}

func (s *server) updateUserHandler(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	var req user.UpdateInput
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := s.users.Update(ctx, callerFrom(c), id, req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondEnvelope(c, http.StatusOK, "User updated successfully", u, nil)
}

func (s *server) deleteUserHandler(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := s.users.Deactivate(ctx, callerFrom(c), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondEnvelope(c, http.StatusOK, "User deleted successfully", u, nil)
}

// clients

// clientView shows whether a bot token is stored without exposing it.
type clientView struct {
	*models.Client
	HasBotToken bool `json:"hasBotToken"`
}

type updateClientRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=255"`
	BotTelegram *string `json:"botTelegram" validate:"omitempty,max=255"`
	BotToken    *string `json:"botToken" validate:"omitempty,max=128"`
}

func (s *server) getClientHandler(c *gin.Context) {
	ctx, cancel := requestContext(c)
	defer cancel()
	cl, err := s.clients.FindByID(ctx, callerFrom(c).ClientID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, clientView{Client: cl, HasBotToken: cl.HasBot()})
}

func (s *server) updateClientHandler(c *gin.Context) {
	var req updateClientRequest
	if err := bindJSON(c, &req); err != nil {
		s.respondError(c, err)
		return
	}
	for _, f := range []*string{req.Name, req.BotTelegram, req.BotToken} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
	if err := validate.Struct(req); err != nil {
		s.respondError(c, err)
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	cl, err := s.clients.Update(ctx, callerFrom(c).ClientID, store.ClientPatch{
		Name:        req.Name,
		BotTelegram: req.BotTelegram,
		BotToken:    req.BotToken,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.log.Info("client updated", "client_id", cl.ID)
	c.JSON(http.StatusOK, clientView{Client: cl, HasBotToken: cl.HasBot()})
}

// telegram

// webhookHandler always acknowledges with 200 so Telegram does not retry.
// Failures, a wrong shared secret included, are reported in the body.
func (s *server) webhookHandler(c *gin.Context) {
	if secret := s.cfg.TelegramWebhookSecret; secret != "" {
		got := c.GetHeader("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			s.log.Warn("telegram webhook secret mismatch", "remote", c.ClientIP())
			c.JSON(http.StatusOK, gin.H{"success": false, "error": "invalid webhook secret"})
			return
		}
	}
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		s.log.Warn("bad telegram update", "err", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "invalid update payload"})
		return
	}
	// sending the reply can take up to the bot client timeout
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout+10*time.Second)
	defer cancel()
	out, err := s.bot.ProcessUpdate(ctx, update)
	if err != nil {
		s.log.Error("error processing telegram update", "update_id", update.UpdateID, "err", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "Internal server error"})
		return
	}
	if out.Err != "" {
		c.JSON(http.StatusOK, gin.H{"success": false, "response": out.Reply, "error": out.Err})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "response": out.Reply})
}

func (s *server) setWebhookHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout+10*time.Second)
	defer cancel()
	url, err := s.bot.SetWebhook(ctx, callerFrom(c).ClientID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": url})
}
