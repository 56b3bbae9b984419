package telegram

import (
	"context"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender talks to the Bot API with a tenant's bot token.
type Sender interface {
	Send(ctx context.Context, token string, chatID int64, text string) error
	SetWebhook(ctx context.Context, token, url, secret string) error
}

// BotSender is the Sender backed by go-telegram-bot-api.
type BotSender struct {
	endpoint string
	client   *http.Client
}

// NewBotSender returns a sender using endpoint (a tgbotapi.APIEndpoint style
// format string, empty for the public API) and a bounded HTTP timeout.
func NewBotSender(endpoint string, timeout time.Duration) *BotSender {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BotSender{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

// ctxClient binds outgoing Bot API requests to the caller's context.
type ctxClient struct {
	ctx    context.Context
	client *http.Client
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}

// bot builds a client for one token. NewBotAPIWithClient is avoided because
// it calls getMe on every construction.
func (s *BotSender) bot(ctx context.Context, token string) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  token,
		Buffer: 100,
		Client: ctxClient{ctx: ctx, client: s.client},
	}
	bot.SetAPIEndpoint(s.endpoint)
	return bot
}

func (s *BotSender) Send(ctx context.Context, token string, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := s.bot(ctx, token).Send(msg)
	return err
}

// SetWebhook registers url for the bot. The secret, when set, is echoed by
// Telegram in the X-Telegram-Bot-Api-Secret-Token header.
func (s *BotSender) SetWebhook(ctx context.Context, token, url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	_, err := s.bot(ctx, token).MakeRequest("setWebhook", params)
	return err
}
