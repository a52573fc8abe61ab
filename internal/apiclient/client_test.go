package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"finboard/internal/tokenstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend accepts one valid access token on /data and serves /auth/refresh.
type fakeBackend struct {
	mu          sync.Mutex
	validToken  string
	authHeaders []string

	refreshCalls   atomic.Int32
	refreshBodies  []map[string]string
	refreshGate    chan struct{} // when set, refresh blocks until closed
	refreshEntered chan struct{}
	refreshStatus  int
	refreshBody    string
	// invalidViaEnvelope answers bad tokens with 200 + error kind instead of 401.
	invalidViaEnvelope bool
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.refreshBodies = append(f.refreshBodies, body)
		gate, entered := f.refreshGate, f.refreshEntered
		f.mu.Unlock()
		if r.Header.Get("Authorization") != "" {
			http.Error(w, "refresh must not carry a bearer token", http.StatusBadRequest)
			return
		}
		if entered != nil {
			close(entered)
		}
		if gate != nil {
			<-gate
		}
		status := f.refreshStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(f.refreshBody))
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		f.mu.Lock()
		f.authHeaders = append(f.authHeaders, auth)
		valid := f.validToken
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if auth != "Bearer "+valid {
			if f.invalidViaEnvelope {
				_, _ = w.Write([]byte(`{"success":false,"error":{"detail":"Given token not valid","code":"token_not_valid"}}`))
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Given token not valid for any token type","code":"token_not_valid"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"value":42}}`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"message":"Something broke"}`))
	})
	return mux
}

func (f *fakeBackend) headers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authHeaders...)
}

type harness struct {
	backend *fakeBackend
	server  *httptest.Server
	store   *tokenstore.Store
	client  *Client
}

func newHarness(t *testing.T, backend *fakeBackend) *harness {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	c, err := tokenstore.NewCipher("test")
	require.NoError(t, err)
	store := tokenstore.New(tokenstore.NewMemoryBackend(), "test-session", c, nil)

	client, err := New(Config{BaseURL: srv.URL, Timeout: 5 * time.Second, RefreshTimeout: 5 * time.Second}, store)
	require.NoError(t, err)
	require.NoError(t, client.Init(context.Background()))
	t.Cleanup(func() { client.Close() })

	return &harness{backend: backend, server: srv, store: store, client: client}
}

func (h *harness) login(t *testing.T, access, refresh string) {
	t.Helper()
	require.NoError(t, h.client.SetTokens(context.Background(), access, refresh))
}

func TestBearerHeaderInjection(t *testing.T) {
	h := newHarness(t, &fakeBackend{validToken: "A1", refreshStatus: http.StatusUnauthorized})
	ctx := context.Background()

	_, err := h.client.Do(ctx, Request{Method: http.MethodGet, Path: "/data", SkipRefresh: true})
	require.Error(t, err)
	assert.Equal(t, "", h.backend.headers()[0], "no header before login")

	h.login(t, "A1", "R1")
	resp, err := h.client.Get(ctx, "/data", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer A1", h.backend.headers()[1])
}

func TestInitLoadsCachedAccessToken(t *testing.T) {
	h := newHarness(t, &fakeBackend{validToken: "A1"})
	ctx := context.Background()
	require.NoError(t, h.store.Store(ctx, tokenstore.Access, "A1"))

	client, err := New(Config{BaseURL: h.server.URL}, h.store)
	require.NoError(t, err)
	defer client.Close()
	assert.Equal(t, "", client.AccessToken())
	require.NoError(t, client.Init(ctx))
	assert.Equal(t, "A1", client.AccessToken())

	var out struct{ Value int }
	_, err = client.DoJSON(ctx, Request{Method: http.MethodGet, Path: "/data"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 42, out.Value)
}

func TestRefreshAndRetry(t *testing.T) {
	backend := &fakeBackend{validToken: "A2", refreshBody: `{"access":"A2","refresh":"R2"}`}
	h := newHarness(t, backend)
	ctx := context.Background()
	h.login(t, "A1", "R1")

	resp, err := h.client.Get(ctx, "/data", nil)
	require.NoError(t, err)
	assert.True(t, resp.Envelope.Success)

	assert.Equal(t, []string{"Bearer A1", "Bearer A2"}, backend.headers())
	require.Len(t, backend.refreshBodies, 1)
	assert.Equal(t, "R1", backend.refreshBodies[0]["refresh"])

	access, err := h.store.Get(ctx, tokenstore.Access)
	require.NoError(t, err)
	refresh, err := h.store.Get(ctx, tokenstore.Refresh)
	require.NoError(t, err)
	assert.Equal(t, "A2", access)
	assert.Equal(t, "R2", refresh)
	assert.Equal(t, "A2", h.client.AccessToken())
}

func TestRefreshAcceptsEnvelopeAndKeepsRefreshToken(t *testing.T) {
	backend := &fakeBackend{validToken: "A2", refreshBody: `{"success":true,"data":{"access":"A2"}}`}
	h := newHarness(t, backend)
	ctx := context.Background()
	h.login(t, "A1", "R1")

	_, err := h.client.Get(ctx, "/data", nil)
	require.NoError(t, err)

	refresh, err := h.store.Get(ctx, tokenstore.Refresh)
	require.NoError(t, err)
	assert.Equal(t, "R1", refresh, "refresh token kept when the backend does not rotate it")
}

func TestEnvelopeErrorKindTriggersRefresh(t *testing.T) {
	backend := &fakeBackend{validToken: "A2", refreshBody: `{"access":"A2","refresh":"R2"}`, invalidViaEnvelope: true}
	h := newHarness(t, backend)
	h.login(t, "A1", "R1")

	resp, err := h.client.Get(context.Background(), "/data", nil)
	require.NoError(t, err)
	assert.True(t, resp.Envelope.Success)
	assert.Equal(t, int32(1), backend.refreshCalls.Load())
}

func TestConcurrentAuthFailuresRefreshOnce(t *testing.T) {
	const n = 12
	backend := &fakeBackend{
		validToken:     "A2",
		refreshBody:    `{"access":"A2","refresh":"R2"}`,
		refreshGate:    make(chan struct{}),
		refreshEntered: make(chan struct{}),
	}
	h := newHarness(t, backend)
	h.login(t, "A1", "R1")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, n)
	do := func() {
		defer wg.Done()
		_, err := h.client.Get(ctx, "/data", nil)
		errs <- err
	}

	wg.Add(1)
	go do()
	<-backend.refreshEntered

	for i := 1; i < n; i++ {
		wg.Add(1)
		go do()
	}
	require.Eventually(t, func() bool {
		return h.client.Stats().Queued == n-1
	}, 2*time.Second, 5*time.Millisecond)

	close(backend.refreshGate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), backend.refreshCalls.Load())

	var retried int
	for _, hdr := range backend.headers() {
		if hdr == "Bearer A2" {
			retried++
		}
	}
	assert.Equal(t, n, retried, "every request re-issued with the new token")
}

func TestStaleAuthFailureReusesNewToken(t *testing.T) {
	backend := &fakeBackend{validToken: "A2", refreshBody: `{"access":"A2","refresh":"R2"}`}
	h := newHarness(t, backend)
	h.login(t, "A1", "R1")
	ctx := context.Background()

	// A request issued under the old token generation fails after the refresh already happened.
	h.client.mu.Lock()
	oldGen := h.client.generation
	h.client.mu.Unlock()

	_, err := h.client.Get(ctx, "/data", nil)
	require.NoError(t, err)

	token, err := h.client.freshToken(ctx, oldGen)
	require.NoError(t, err)
	assert.Equal(t, "A2", token)
	assert.Equal(t, int32(1), backend.refreshCalls.Load())
}

func TestRefreshFailureRejectsQueuedRequests(t *testing.T) {
	const n = 5
	backend := &fakeBackend{
		validToken:     "never",
		refreshStatus:  http.StatusUnauthorized,
		refreshBody:    `{"detail":"Token is invalid or expired","code":"token_not_valid"}`,
		refreshGate:    make(chan struct{}),
		refreshEntered: make(chan struct{}),
	}
	h := newHarness(t, backend)
	h.login(t, "A1", "R1")
	ctx := context.Background()

	var expired atomic.Int32
	h.client.OnSessionExpired(func(error) { expired.Add(1) })

	var wg sync.WaitGroup
	errs := make(chan error, n)
	do := func() {
		defer wg.Done()
		_, err := h.client.Get(ctx, "/data", nil)
		errs <- err
	}
	wg.Add(1)
	go do()
	<-backend.refreshEntered
	for i := 1; i < n; i++ {
		wg.Add(1)
		go do()
	}
	require.Eventually(t, func() bool {
		return h.client.Stats().Queued == n-1
	}, 2*time.Second, 5*time.Millisecond)

	close(backend.refreshGate)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSessionExpired))
		var re *RefreshError
		assert.True(t, errors.As(err, &re))
	}
	assert.Equal(t, int32(1), backend.refreshCalls.Load())
	assert.Equal(t, int32(1), expired.Load())
	assert.Equal(t, "", h.client.AccessToken())

	for _, k := range tokenstore.Kinds {
		v, err := h.store.Get(ctx, k)
		require.NoError(t, err)
		assert.Empty(t, v)
	}
}

func TestMissingRefreshTokenRequiresLogin(t *testing.T) {
	backend := &fakeBackend{validToken: "A2"}
	h := newHarness(t, backend)
	ctx := context.Background()
	require.NoError(t, h.store.Store(ctx, tokenstore.Access, "A1"))

	var got error
	h.client.OnSessionExpired(func(err error) { got = err })

	_, err := h.client.Get(ctx, "/data", nil)
	require.ErrorIs(t, err, ErrLoginRequired)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.ErrorIs(t, got, ErrLoginRequired)
	assert.Equal(t, int32(0), backend.refreshCalls.Load(), "no network refresh without a refresh token")

	v, err := h.store.Get(ctx, tokenstore.Access)
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestRetriedRequestIsNotRefreshedTwice(t *testing.T) {
	// Refresh succeeds but the backend still rejects the new token.
	backend := &fakeBackend{validToken: "other", refreshBody: `{"access":"A2","refresh":"R2"}`}
	h := newHarness(t, backend)
	h.login(t, "A1", "R1")

	_, err := h.client.Get(context.Background(), "/data", nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, int32(1), backend.refreshCalls.Load())
	assert.Len(t, backend.headers(), 2)
}

func TestSkipRefreshPassesAuthFailureThrough(t *testing.T) {
	backend := &fakeBackend{validToken: "A2", refreshBody: `{"access":"A2","refresh":"R2"}`}
	h := newHarness(t, backend)
	h.login(t, "A1", "R1")

	_, err := h.client.Do(context.Background(), Request{Method: http.MethodGet, Path: "/data", SkipRefresh: true})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int32(0), backend.refreshCalls.Load())
}

func TestNonAuthErrorsPassThrough(t *testing.T) {
	backend := &fakeBackend{validToken: "A1"}
	h := newHarness(t, backend)
	h.login(t, "A1", "R1")

	resp, err := h.client.Get(context.Background(), "/broken", nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Something broke", ErrorMessage(err, ""))
	assert.Equal(t, int32(0), backend.refreshCalls.Load())
}

func TestCloseRejectsWaitersAndLaterCalls(t *testing.T) {
	backend := &fakeBackend{
		validToken:     "A2",
		refreshBody:    `{"access":"A2","refresh":"R2"}`,
		refreshGate:    make(chan struct{}),
		refreshEntered: make(chan struct{}),
	}
	h := newHarness(t, backend)
	h.login(t, "A1", "R1")
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := h.client.Get(ctx, "/data", nil)
		first <- err
	}()
	<-backend.refreshEntered

	waiter := make(chan error, 1)
	go func() {
		_, err := h.client.Get(ctx, "/data", nil)
		waiter <- err
	}()
	require.Eventually(t, func() bool { return h.client.Stats().Queued == 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.client.Close())
	assert.ErrorIs(t, <-waiter, ErrClientClosed)

	close(backend.refreshGate)
	<-first

	_, err := h.client.Get(ctx, "/data", nil)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestWaiterHonoursContext(t *testing.T) {
	backend := &fakeBackend{
		validToken:     "A2",
		refreshBody:    `{"access":"A2","refresh":"R2"}`,
		refreshGate:    make(chan struct{}),
		refreshEntered: make(chan struct{}),
	}
	h := newHarness(t, backend)
	h.login(t, "A1", "R1")

	first := make(chan error, 1)
	go func() {
		_, err := h.client.Get(context.Background(), "/data", nil)
		first <- err
	}()
	<-backend.refreshEntered

	ctx, cancel := context.WithCancel(context.Background())
	waiter := make(chan error, 1)
	go func() {
		_, err := h.client.Get(ctx, "/data", nil)
		waiter <- err
	}()
	require.Eventually(t, func() bool { return h.client.Stats().Queued == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-waiter, context.Canceled)

	close(backend.refreshGate)
	assert.NoError(t, <-first, "the refresh is unaffected by an abandoned waiter")
}

func TestNewValidatesConfig(t *testing.T) {
	c, err := tokenstore.NewCipher("k")
	require.NoError(t, err)
	store := tokenstore.New(tokenstore.NewMemoryBackend(), "ns", c, nil)

	_, err = New(Config{}, store)
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "http://x"}, nil)
	assert.Error(t, err)
}
