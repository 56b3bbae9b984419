// Package telegram turns inbound Bot API updates into ledger commands and
// sends the textual result back through the tenant's own bot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"dompet/models"
	"dompet/pkg/apperr"
	"dompet/pkg/auth"
	"dompet/pkg/expense"
	"dompet/pkg/ratelimit"
	"dompet/pkg/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Outcome is what the webhook reports for one update. Err is set when the
// reply could not be delivered.
type Outcome struct {
	Reply string
	Err   string
}

// Options configure a Dispatcher.
type Options struct {
	WebhookURL    string
	WebhookSecret string
	Location      *time.Location
}

type Dispatcher struct {
	users    store.UserRepository
	clients  store.ClientRepository
	expenses *expense.Service
	sender   Sender
	limiter  ratelimit.Limiter
	opts     Options
	log      *slog.Logger
	now      func() time.Time
}

func NewDispatcher(st *store.Store, expenses *expense.Service, sender Sender, limiter ratelimit.Limiter, opts Options, logger *slog.Logger) *Dispatcher {
	if limiter == nil {
		limiter = ratelimit.Noop{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		users:    st.Users,
		clients:  st.Clients,
		expenses: expenses,
		sender:   sender,
		limiter:  limiter,
		opts:     opts,
		log:      logger.With("component", "telegram"),
		now:      time.Now,
	}
}

// ProcessUpdate handles one update. Expected failures become reply text; the
// returned error is reserved for storage failures while resolving the sender.
func (d *Dispatcher) ProcessUpdate(ctx context.Context, u tgbotapi.Update) (Outcome, error) {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return Outcome{Reply: replyNoMessage}, nil
	}
	log := d.log.With("update_id", u.UpdateID, "chat_id", msg.Chat.ID)
	log.Info("processing message", "text", msg.Text)

	if msg.From == nil || msg.From.UserName == "" {
		return Outcome{Reply: replyNoUsername}, nil
	}
	user, err := d.users.FindByTelegramUsername(ctx, strings.ToLower(msg.From.UserName))
	if errors.Is(err, apperr.ErrNotFound) {
		return Outcome{Reply: replyUserNotFound}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	client, err := d.clients.FindByID(ctx, user.ClientID)
	if errors.Is(err, apperr.ErrNotFound) || (err == nil && !client.IsActive) {
		return Outcome{Reply: replyClientNotFound}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	// no command runs when the reply could never be delivered
	if !client.HasBot() {
		log.Warn("no bot token for client", "client_id", client.ID)
		return Outcome{Err: errNoBotToken}, nil
	}
	d.backfill(ctx, log, user, msg)

	reply := d.limited(ctx, log, client, user)
	if reply == "" {
		reply = d.dispatch(ctx, log, user, client, msg)
	}
	if err := d.sender.Send(ctx, client.BotToken, msg.Chat.ID, reply); err != nil {
		log.Error("failed to send reply", "client_id", client.ID, "err", err)
		return Outcome{Reply: reply, Err: "failed to send reply: " + err.Error()}, nil
	}
	return Outcome{Reply: reply}, nil
}

// backfill stores the chat id the first time a known user writes.
func (d *Dispatcher) backfill(ctx context.Context, log *slog.Logger, user *models.User, msg *tgbotapi.Message) {
	if user.TelegramChatID != "" {
		return
	}
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	p := store.UserPatch{TelegramChatID: &chatID}
	if user.TelegramFirstName == "" && msg.From.FirstName != "" {
		p.TelegramFirstName = &msg.From.FirstName
	}
	if user.TelegramLastName == "" && msg.From.LastName != "" {
		p.TelegramLastName = &msg.From.LastName
	}
	if _, err := d.users.Update(ctx, user.ID, p); err != nil {
		log.Warn("failed to store chat id", "user_id", user.ID, "err", err)
		return
	}
	user.TelegramChatID = chatID
}

// limited returns the rate-limit reply, or "" when the command may run.
// A limiter outage lets the command through.
func (d *Dispatcher) limited(ctx context.Context, log *slog.Logger, client *models.Client, user *models.User) string {
	ok, err := d.limiter.Allow(ctx, fmt.Sprintf("%d:%d", client.ID, user.ID))
	if err != nil {
		log.Warn("rate limiter unavailable", "err", err)
		return ""
	}
	if !ok {
		return replyRateLimited
	}
	return ""
}

func (d *Dispatcher) dispatch(ctx context.Context, log *slog.Logger, user *models.User, client *models.Client, msg *tgbotapi.Message) string {
	cmd, args := command(msg.Text)
	switch cmd {
	case "/add":
		return d.add(ctx, log, user, msg, args)
	case "/summary":
		return d.summary(ctx, log, client)
	case "/help", "/start":
		return helpText
	}
	return replyUnknown
}

func (d *Dispatcher) add(ctx context.Context, log *slog.Logger, user *models.User, msg *tgbotapi.Message, args []string) string {
	if len(args) < 2 {
		return replyAddFormat
	}
	amount, ok := expense.ParseAmount(args[0])
	if !ok {
		return replyBadAmount
	}
	category := MapCategory(args[1])
	note := strings.Join(args[2:], " ")
	messageID := int64(msg.MessageID)
	now := d.now()

	caller := auth.Identity{UserID: user.ID, ClientID: user.ClientID}
	e, err := d.expenses.Create(ctx, caller, expense.CreateInput{
		Amount:            amount,
		Category:          category,
		Note:              note,
		Date:              now.Format(time.RFC3339Nano),
		TelegramMessageID: &messageID,
	})
	if err != nil {
		log.Error("failed to add expense", "user_id", user.ID, "err", err)
		return replyAddFailed
	}

	return fmt.Sprintf("✅ Expense added successfully!\n💰 Amount: %s\n📂 Category: %s\n📝 Note: %s\n📅 Date: %s",
		formatNumber(e.Amount), e.Category, e.Note, e.Date.In(d.opts.Location).Format("2/1/2006"))
}

func (d *Dispatcher) summary(ctx context.Context, log *slog.Logger, client *models.Client) string {
	from, to := expense.PeriodWindow(expense.PeriodMonth, d.now(), d.opts.Location)
	s, err := d.expenses.Summarize(ctx, store.ExpenseFilter{ClientID: client.ID, From: &from, To: &to})
	if err != nil {
		log.Error("failed to build summary", "client_id", client.ID, "err", err)
		return replySummaryFailed
	}
	return formatSummary(s)
}

// SetWebhook points the client's bot at this server.
func (d *Dispatcher) SetWebhook(ctx context.Context, clientID uint) (string, error) {
	client, err := d.clients.FindByID(ctx, clientID)
	if err != nil {
		return "", err
	}
	if !client.HasBot() {
		return "", apperr.Invalid("botToken", "is not configured for this client")
	}
	if d.opts.WebhookURL == "" {
		return "", apperr.Invalid("publicBaseUrl", "is not configured on the server")
	}
	if err := d.sender.SetWebhook(ctx, client.BotToken, d.opts.WebhookURL, d.opts.WebhookSecret); err != nil {
		return "", apperr.Upstream("telegram setWebhook failed", err)
	}
	d.log.Info("webhook registered", "client_id", client.ID, "url", d.opts.WebhookURL)
	return d.opts.WebhookURL, nil
}
