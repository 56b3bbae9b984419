package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dompet/models"
	"dompet/pkg/config"
	"dompet/pkg/ratelimit"
	"dompet/pkg/store"
	"dompet/pkg/store/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// performRequest sends a request with an optional bearer token.
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type recordingSender struct {
	texts []string
}

func (s *recordingSender) Send(_ context.Context, _ string, _ int64, text string) error {
	s.texts = append(s.texts, text)
	return nil
}

func (s *recordingSender) SetWebhook(context.Context, string, string, string) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Env:                   "test",
		StoreDriver:           "memory",
		JWTSecret:             []byte("test-secret"),
		JWTTTL:                time.Hour,
		CookieName:            "authToken",
		CookieSameSite:        http.SameSiteLaxMode,
		CORSAllowedOrigins:    []string{"http://localhost:5173"},
		PublicBaseURL:         "https://api.example.com",
		TelegramWebhookSecret: "hook-secret",
		Location:              time.UTC,
	}
}

type testServer struct {
	r      *gin.Engine
	st     *store.Store
	sender *recordingSender
}

func setupMemoryServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	_, st := memory.New()
	sender := &recordingSender{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := newServer(testConfig(), st, sender, ratelimit.Noop{}, logger)
	return &testServer{r: app.router(), st: st, sender: sender}
}

// register creates a tenant and returns the session token taken from the cookie.
func (ts *testServer) register(t *testing.T, email, clientName string) string {
	t.Helper()
	rec := performRequest(ts.r, http.MethodPost, "/api/auth/register",
		jsonBody(t, map[string]string{"email": email, "password": "secret123", "clientName": clientName}), "", "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == "authToken" {
			assert.True(t, c.HttpOnly)
			return c.Value
		}
	}
	t.Fatalf("no auth cookie in register response")
	return ""
}

func TestHealth(t *testing.T) {
	ts := setupMemoryServer(t)
	rec := performRequest(ts.r, http.MethodGet, "/health", nil, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestRegisterLoginAndMe(t *testing.T) {
	ts := setupMemoryServer(t)
	token := ts.register(t, "Owner@Example.com", "Acme")
	require.NotEmpty(t, token)

	rec := performRequest(ts.r, http.MethodPost, "/api/auth/login",
		jsonBody(t, map[string]string{"email": "owner@example.com", "password": "secret123"}), "", "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	u := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "owner@example.com", u["email"])
	assert.Equal(t, "Acme", u["clientName"])

	me := performRequest(ts.r, http.MethodPost, "/api/auth/me", nil, token, "")
	require.Equal(t, http.StatusOK, me.Code)
	got := decode(t, me)["user"].(map[string]any)
	assert.Equal(t, "owner@example.com", got["email"])

	// the cookie alone authenticates too
	req, _ := http.NewRequest(http.MethodPost, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "authToken", Value: token})
	cookieRec := httptest.NewRecorder()
	ts.r.ServeHTTP(cookieRec, req)
	assert.Equal(t, http.StatusOK, cookieRec.Code)
}

func TestRegisterValidationAndConflicts(t *testing.T) {
	ts := setupMemoryServer(t)
	rec := performRequest(ts.r, http.MethodPost, "/api/auth/register",
		jsonBody(t, map[string]string{"email": "nope", "password": "1", "clientName": ""}), "", "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode(t, rec)["fields"].([]any)
	assert.Len(t, fields, 3)

	ts.register(t, "a@example.com", "Acme")
	dup := performRequest(ts.r, http.MethodPost, "/api/auth/register",
		jsonBody(t, map[string]string{"email": "a@example.com", "password": "secret123", "clientName": "Other"}), "", "application/json")
	assert.Equal(t, http.StatusConflict, dup.Code)
	taken := performRequest(ts.r, http.MethodPost, "/api/auth/register",
		jsonBody(t, map[string]string{"email": "b@example.com", "password": "secret123", "clientName": "Acme"}), "", "application/json")
	assert.Equal(t, http.StatusConflict, taken.Code)

	bad := performRequest(ts.r, http.MethodPost, "/api/auth/login",
		jsonBody(t, map[string]string{"email": "a@example.com", "password": "wrong"}), "", "application/json")
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	ts := setupMemoryServer(t)
	for _, path := range []string{"/api/expenses/list", "/api/expenses/summary", "/api/users", "/api/clients/me"} {
		rec := performRequest(ts.r, http.MethodGet, path, nil, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := performRequest(ts.r, http.MethodGet, "/api/users", nil, "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutClearsCookie(t *testing.T) {
	ts := setupMemoryServer(t)
	token := ts.register(t, "a@example.com", "Acme")
	rec := performRequest(ts.r, http.MethodPost, "/api/auth/logout", nil, token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "authToken" && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestExpenseLifecycle(t *testing.T) {
	ts := setupMemoryServer(t)
	token := ts.register(t, "a@example.com", "Acme")

	create := func(amount int64, category, date string) uint {
		rec := performRequest(ts.r, http.MethodPost, "/api/expenses",
			jsonBody(t, map[string]any{"amount": amount, "category": category, "note": "n", "date": date}), token, "application/json")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return uint(decode(t, rec)["id"].(float64))
	}
	first := create(15000, "Food", "2024-03-01")
	create(50000, "transport", "2024-03-02")
	create(5000, "food", "2024-03-03")

	rec := performRequest(ts.r, http.MethodPost, "/api/expenses",
		jsonBody(t, map[string]any{"amount": 0, "category": "toys"}), token, "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, decode(t, rec)["fields"].([]any), 2)

	rec = performRequest(ts.r, http.MethodPost, "/api/expenses",
		bytes.NewBufferString(`{"amount":"lots","category":"food"}`), token, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	list := performRequest(ts.r, http.MethodGet, "/api/expenses/list?limit=2&startDate=2024-03-01&endDate=2024-03-31", nil, token, "")
	require.Equal(t, http.StatusOK, list.Code, list.Body.String())
	body := decode(t, list)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["totalPages"])
	rows := body["data"].([]any)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 5000, rows[0].(map[string]any)["amount"])
	assert.NotNil(t, rows[0].(map[string]any)["user"])

	sum := performRequest(ts.r, http.MethodGet, "/api/expenses/summary?startDate=2024-03-01&endDate=2024-03-31", nil, token, "")
	require.Equal(t, http.StatusOK, sum.Code)
	s := decode(t, sum)
	assert.EqualValues(t, 70000, s["total"])
	assert.EqualValues(t, 3, s["count"])
	breakdown := s["breakdown"].([]any)
	require.Len(t, breakdown, 2)
	assert.Equal(t, "transport", breakdown[0].(map[string]any)["category"])

	bad := performRequest(ts.r, http.MethodGet, "/api/expenses/list?page=0&limit=1000", nil, token, "")
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	path := fmt.Sprintf("/api/expenses/%d", first)
	upd := performRequest(ts.r, http.MethodPut, path, jsonBody(t, map[string]any{"amount": 20000}), token, "application/json")
	require.Equal(t, http.StatusOK, upd.Code, upd.Body.String())
	assert.EqualValues(t, 20000, decode(t, upd)["amount"])

	get := performRequest(ts.r, http.MethodGet, path, nil, token, "")
	require.Equal(t, http.StatusOK, get.Code)
	assert.Equal(t, "food", decode(t, get)["category"])

	del := performRequest(ts.r, http.MethodDelete, path, nil, token, "")
	require.Equal(t, http.StatusOK, del.Code)
	gone := performRequest(ts.r, http.MethodGet, path, nil, token, "")
	assert.Equal(t, http.StatusNotFound, gone.Code)

	badID := performRequest(ts.r, http.MethodGet, "/api/expenses/abc", nil, token, "")
	assert.Equal(t, http.StatusBadRequest, badID.Code)
}

func TestExpensesAreTenantScoped(t *testing.T) {
	ts := setupMemoryServer(t)
	alice := ts.register(t, "alice@example.com", "Alice Co")
	bob := ts.register(t, "bob@example.com", "Bob Co")

	rec := performRequest(ts.r, http.MethodPost, "/api/expenses",
		jsonBody(t, map[string]any{"amount": 1000, "category": "food"}), alice, "application/json")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := uint(decode(t, rec)["id"].(float64))
	path := fmt.Sprintf("/api/expenses/%d", id)

	assert.Equal(t, http.StatusForbidden, performRequest(ts.r, http.MethodGet, path, nil, bob, "").Code)
	assert.Equal(t, http.StatusForbidden, performRequest(ts.r, http.MethodDelete, path, nil, bob, "").Code)
	assert.Equal(t, http.StatusForbidden,
		performRequest(ts.r, http.MethodPut, path, jsonBody(t, map[string]any{"note": "mine"}), bob, "application/json").Code)

	list := performRequest(ts.r, http.MethodGet, "/api/expenses/list", nil, bob, "")
	require.Equal(t, http.StatusOK, list.Code)
	assert.EqualValues(t, 0, decode(t, list)["total"])
	assert.Empty(t, decode(t, list)["data"])
}

func TestUsersEnvelope(t *testing.T) {
	ts := setupMemoryServer(t)
	token := ts.register(t, "a@example.com", "Acme")

	rec := performRequest(ts.r, http.MethodPost, "/api/users",
		jsonBody(t, map[string]any{"telegramUsername": "@budi"}), token, "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "User created successfully", body["message"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "budi", data["telegramUsername"])
	assert.NotEmpty(t, body["meta"].(map[string]any)["timestamp"])
	id := uint(data["id"].(float64))

	list := performRequest(ts.r, http.MethodGet, "/api/users", nil, token, "")
	require.Equal(t, http.StatusOK, list.Code)
	lb := decode(t, list)
	assert.Equal(t, "Users retrieved successfully", lb["message"])
	assert.EqualValues(t, 2, lb["meta"].(map[string]any)["total"])

	path := fmt.Sprintf("/api/users/%d", id)
	get := performRequest(ts.r, http.MethodGet, path, nil, token, "")
	require.Equal(t, http.StatusOK, get.Code)
	client := decode(t, get)["data"].(map[string]any)["client"].(map[string]any)
	assert.Equal(t, "Acme", client["name"])

	upd := performRequest(ts.r, http.MethodPut, path, jsonBody(t, map[string]any{"telegramFirstName": "Budi"}), token, "application/json")
	require.Equal(t, http.StatusOK, upd.Code)
	assert.Equal(t, "User updated successfully", decode(t, upd)["message"])

	del := performRequest(ts.r, http.MethodDelete, path, nil, token, "")
	require.Equal(t, http.StatusOK, del.Code)
	assert.Equal(t, false, decode(t, del)["data"].(map[string]any)["isActive"])

	other := ts.register(t, "b@example.com", "Other")
	assert.Equal(t, http.StatusForbidden, performRequest(ts.r, http.MethodGet, path, nil, other, "").Code)

	missing := performRequest(ts.r, http.MethodPost, "/api/users", jsonBody(t, map[string]any{}), token, "application/json")
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestClientSelfService(t *testing.T) {
	ts := setupMemoryServer(t)
	token := ts.register(t, "a@example.com", "Acme")

	rec := performRequest(ts.r, http.MethodPut, "/api/clients/me",
		jsonBody(t, map[string]any{"botTelegram": "@acme_bot", "botToken": "42:xyz"}), token, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["hasBotToken"])
	assert.NotContains(t, rec.Body.String(), "42:xyz")

	bad := performRequest(ts.r, http.MethodPut, "/api/clients/me", jsonBody(t, map[string]any{"name": "A"}), token, "application/json")
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	hook := performRequest(ts.r, http.MethodPost, "/api/telegram/set-webhook", nil, token, "")
	require.Equal(t, http.StatusOK, hook.Code, hook.Body.String())
	assert.Equal(t, "https://api.example.com/api/telegram/webhook", decode(t, hook)["url"])
}

func webhookRequest(t *testing.T, r http.Handler, secret string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, "/api/telegram/webhook", body)
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func chatUpdate(username, text string) map[string]any {
	return map[string]any{
		"update_id": 1,
		"message": map[string]any{
			"message_id": 7,
			"date":       1710900000,
			"text":       text,
			"chat":       map[string]any{"id": 555, "type": "private"},
			"from":       map[string]any{"id": 555, "is_bot": false, "first_name": "Budi", "username": username},
		},
	}
}

func TestTelegramWebhook(t *testing.T) {
	ts := setupMemoryServer(t)
	ctx := context.Background()
	client := &models.Client{Name: "Acme", BotToken: "42:xyz"}
	require.NoError(t, ts.st.Clients.Create(ctx, client))
	require.NoError(t, ts.st.Users.Create(ctx, &models.User{ClientID: client.ID, TelegramUsername: "budi"}))

	denied := webhookRequest(t, ts.r, "wrong", jsonBody(t, chatUpdate("budi", "/add 15000 makan nasi goreng")))
	require.Equal(t, http.StatusOK, denied.Code)
	deniedBody := decode(t, denied)
	assert.Equal(t, false, deniedBody["success"])
	assert.Equal(t, "invalid webhook secret", deniedBody["error"])
	assert.Empty(t, ts.sender.texts)
	rows, total, err := ts.st.Expenses.List(ctx, store.ExpenseFilter{ClientID: client.ID}, store.Page{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, rows)

	rec := webhookRequest(t, ts.r, "hook-secret", jsonBody(t, chatUpdate("budi", "/add 15000 makan nasi goreng")))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body["response"], "Expense added successfully")
	require.Len(t, ts.sender.texts, 1)

	unknown := webhookRequest(t, ts.r, "hook-secret", jsonBody(t, chatUpdate("stranger", "/help")))
	require.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, "User not found. Please register first.", decode(t, unknown)["response"])

	garbage := webhookRequest(t, ts.r, "hook-secret", bytes.NewBufferString("{"))
	require.Equal(t, http.StatusOK, garbage.Code)
	assert.Equal(t, false, decode(t, garbage)["success"])

	u, err := ts.st.Users.FindByTelegramUsername(ctx, "budi")
	require.NoError(t, err)
	assert.Equal(t, "555", u.TelegramChatID)
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	ts := setupMemoryServer(t)
	req, _ := http.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	ts.r.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	ts.r.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
