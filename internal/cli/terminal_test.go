package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finboard/internal/config"
	"finboard/internal/core"
	"finboard/internal/tokenstore"
)

const testPassword = "correct-horse"

type fakeAPI struct {
	refresh string

	mu      sync.Mutex
	logouts int
	queries []string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": 7}).SignedString([]byte("secret"))
	require.NoError(t, err)
	f := &fakeAPI{refresh: refresh}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) lastQuery() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return ""
	}
	return f.queries[len(f.queries)-1]
}

func envelope(w http.ResponseWriter, status int, success bool, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{"success": success, "data": data}
	if message != "" {
		body["message"] = message
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	signIn := func(w http.ResponseWriter, r *http.Request) {
		var creds struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds.Password != testPassword {
			envelope(w, http.StatusUnauthorized, false, nil, "Invalid credentials")
			return
		}
		envelope(w, http.StatusOK, true, map[string]any{
			"access":  "access-token",
			"refresh": f.refresh,
			"user":    map[string]string{"email": creds.Email},
		}, "")
	}
	mux.HandleFunc("POST /auth/login", signIn)
	mux.HandleFunc("POST /auth/register", signIn)
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logouts++
		f.mu.Unlock()
		envelope(w, http.StatusOK, true, nil, "")
	})
	mux.HandleFunc("GET /users/7", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-token" {
			envelope(w, http.StatusUnauthorized, false, nil, "Unauthorized")
			return
		}
		envelope(w, http.StatusOK, true, map[string]any{"id": 7, "email": "me@example.com"}, "")
	})
	mux.HandleFunc("GET /summary", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, http.StatusOK, true, map[string]any{
			"budgetStats":       []any{},
			"incomeCategories":  []map[string]any{{"category": "Salary", "totalincome": "2500.00"}},
			"expenseCategories": []map[string]any{{"category": "Groceries", "totalincome": "300.00"}},
			"totalSaving":       "2200.00",
			"totalEarning":      "2500.00",
			"totalExpenses":     "300.00",
		}, "")
	})
	mux.HandleFunc("GET /transactions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.queries = append(f.queries, r.URL.RawQuery)
		f.mu.Unlock()
		envelope(w, http.StatusOK, true, map[string]any{
			"count": 1,
			"data": []map[string]any{{
				"id": 1, "note": "weekly groceries", "category": "Groceries",
				"amount": "42.10", "date": "2025-03-02", "is_income": false,
			}},
		}, "")
	})
	return mux
}

type harness struct {
	fake    *fakeAPI
	api     *httptest.Server
	backend *tokenstore.MemoryBackend
}

func newHarness(t *testing.T) *harness {
	fake, api := newFakeAPI(t)
	return &harness{fake: fake, api: api, backend: tokenstore.NewMemoryBackend()}
}

func (h *harness) run(stdin string, args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	cfg := &config.Config{
		APIBaseURL:          h.api.URL,
		APITimeout:          5 * time.Second,
		APIRefreshTimeout:   5 * time.Second,
		TokenObfuscationKey: config.DefaultObfuscationKey,
	}
	code = Run(context.Background(), args, Env{
		Stdin:   strings.NewReader(stdin),
		Stdout:  &out,
		Stderr:  &errOut,
		Config:  cfg,
		Backend: h.backend,
	})
	return code, out.String(), errOut.String()
}

func TestRunUsage(t *testing.T) {
	h := newHarness(t)

	code, _, stderr := h.run("")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: finboard-cli")

	code, _, stderr = h.run("", "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t)

	code, stdout, stderr := h.run(testPassword+"\n", "login", "-email", "me@example.com")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Signed in as me@example.com")

	code, stdout, _ = h.run("", "whoami")
	assert.Equal(t, 0, code)
	assert.Equal(t, "me@example.com\n", stdout)

	code, stdout, _ = h.run("", "logout")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Signed out")
	assert.Zero(t, h.backend.Len(), "tokens are wiped")
	h.fake.mu.Lock()
	assert.Equal(t, 1, h.fake.logouts)
	h.fake.mu.Unlock()

	code, _, stderr = h.run("", "whoami")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Not signed in")
}

func TestProfilesAreSeparate(t *testing.T) {
	h := newHarness(t)

	code, _, stderr := h.run(testPassword+"\n", "-profile", "work", "login", "-email", "me@example.com")
	require.Equal(t, 0, code, stderr)

	code, _, _ = h.run("", "whoami")
	assert.Equal(t, 1, code)
	code, _, _ = h.run("", "-profile", "work", "whoami")
	assert.Equal(t, 0, code)
}

func TestLoginPromptsAndValidates(t *testing.T) {
	h := newHarness(t)

	code, _, stderr := h.run("not-an-email\nshort\n", "login")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Invalid email address")
	assert.Contains(t, stderr, "Password should be at least 8 characters long")

	code, _, stderr = h.run("me@example.com\nwrong-password\n", "login")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Invalid credentials")
	assert.Zero(t, h.backend.Len())
}

func TestSignup(t *testing.T) {
	h := newHarness(t)

	code, stdout, stderr := h.run(testPassword+"\n", "signup", "-email", "new@example.com")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Signed in as new@example.com")
}

func TestCommandsRequireSignIn(t *testing.T) {
	h := newHarness(t)

	for _, cmd := range []string{"summary", "budgets", "transactions"} {
		code, _, stderr := h.run("", cmd)
		assert.Equal(t, 1, code, cmd)
		assert.Contains(t, stderr, "Not signed in", cmd)
	}

	code, stdout, _ := h.run("", "logout")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Not signed in")
}

func TestSummaryAndTransactions(t *testing.T) {
	h := newHarness(t)
	code, _, stderr := h.run(testPassword+"\n", "login", "-email", "me@example.com")
	require.Equal(t, 0, code, stderr)

	code, stdout, stderr := h.run("", "summary")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Total income:")
	assert.Contains(t, stdout, "Expenses by category")

	code, stdout, stderr = h.run("", "transactions", "-type", "expense", "-category", "Groceries")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "weekly groceries")
	assert.Contains(t, stdout, "2025-03-02")
	assert.Contains(t, stdout, "page 1, 1 transactions")
	assert.Contains(t, h.fake.lastQuery(), "is_income=false")
	assert.Contains(t, h.fake.lastQuery(), "category=Groceries")

	code, _, stderr = h.run("", "transactions", "-type", "sideways")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown type")
}

func TestPageFooter(t *testing.T) {
	next := "http://api/transactions?page=3"
	assert.Equal(t, "page 2, 40 transactions, next: -page 3", pageFooter(2, core.TransactionPage{Count: 40, Next: &next}))
	assert.Equal(t, "page 1, 3 transactions", pageFooter(1, core.TransactionPage{Count: 3}))
}
