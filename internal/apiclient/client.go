// Package apiclient is the authenticated HTTP client for the finance REST backend.
//
// Every request carries the cached access token as a bearer header. When the
// backend reports an invalid or expired token the client refreshes it once, no
// matter how many requests fail at the same time: the first failure performs the
// refresh and the others wait in FIFO order, then every waiter re-issues its own
// request with the new token. If the refresh fails the session is cleared and all
// waiters receive the refresh error.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"finboard/internal/log"
	"finboard/internal/tokenstore"
)

const (
	DefaultTimeout        = 15 * time.Second
	DefaultRefreshTimeout = 10 * time.Second
	RefreshPath           = "/auth/refresh"

	maxBodyBytes = 10 << 20
)

type refreshState int

const (
	stateIdle refreshState = iota
	stateRefreshing
)

func (s refreshState) String() string {
	if s == stateRefreshing {
		return "refreshing"
	}
	return "idle"
}

// Config configures a Client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RefreshTimeout time.Duration
	HTTPClient     *http.Client
	Logger         *log.Logger
}

// Request describes one backend call. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any

	// SkipRefresh sends the request without the refresh interceptor; auth
	// endpoints use it so a failed login is never mistaken for an expired token.
	SkipRefresh bool

	// BearerToken overrides the cached access token for this request only.
	BearerToken string
}

// Response is a fully read backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Envelope   Envelope
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Stats are counters exposed on the metrics endpoint and used by tests.
type Stats struct {
	Requests        int64
	Refreshes       int64
	RefreshFailures int64
	Queued          int64
}

type refreshOutcome struct {
	token string
	err   error
}

// Client is safe for concurrent use. Its token state belongs to the instance;
// each browser session owns one.
type Client struct {
	baseURL        string
	http           *http.Client
	store          *tokenstore.Store
	logger         *log.Logger
	timeout        time.Duration
	refreshTimeout time.Duration

	mu          sync.Mutex
	accessToken string
	// generation changes whenever the installed token changes; a request sent
	// under an older generation is stale and is retried without a new refresh.
	generation  uint64
	state       refreshState
	waiters     []chan refreshOutcome
	initialized bool
	closed      bool
	onExpired   []func(error)

	requests        atomic.Int64
	refreshes       atomic.Int64
	refreshFailures atomic.Int64
	queued          atomic.Int64
}

// New creates a client bound to store. Call Init before the first request.
func New(cfg Config, store *tokenstore.Store) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api base URL cannot be empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse api base URL: %w", err)
	}
	if store == nil {
		return nil, errors.New("token store is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = DefaultRefreshTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	return &Client{
		baseURL:        base,
		http:           cfg.HTTPClient,
		store:          store,
		logger:         cfg.Logger.WithComponent(log.ComponentAPIClient).With(log.FieldSessionID, store.Namespace()),
		timeout:        cfg.Timeout,
		refreshTimeout: cfg.RefreshTimeout,
	}, nil
}

// Init loads the cached access token from the store. Later calls are no-ops.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	token, err := c.store.Get(ctx, tokenstore.Access)
	if err != nil {
		return fmt.Errorf("load access token: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		c.accessToken = token
		c.initialized = true
	}
	return nil
}

// Close rejects pending waiters and makes every later call fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, w := range waiters {
		w <- refreshOutcome{err: ErrClientClosed}
	}
	return nil
}

// OnSessionExpired registers fn to run after the session is cleared because a
// refresh failed or no refresh token was available.
func (c *Client) OnSessionExpired(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpired = append(c.onExpired, fn)
}

// AccessToken returns the cached access token.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// RefreshToken reads the refresh token from the store.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	return c.store.Get(ctx, tokenstore.Refresh)
}

// SetTokens persists a new token pair and installs the access token.
func (c *Client) SetTokens(ctx context.Context, access, refresh string) error {
	if err := c.store.Store(ctx, tokenstore.Access, access); err != nil {
		return err
	}
	if err := c.store.Store(ctx, tokenstore.Refresh, refresh); err != nil {
		return err
	}
	c.mu.Lock()
	c.accessToken = access
	c.generation++
	c.initialized = true
	c.mu.Unlock()
	return nil
}

// ClearSession wipes stored tokens and the cached access token.
func (c *Client) ClearSession(ctx context.Context) error {
	c.mu.Lock()
	c.accessToken = ""
	c.generation++
	c.mu.Unlock()
	return c.store.Clear(ctx)
}

// Stats returns a snapshot of the client's counters.
func (c *Client) Stats() Stats {
	return Stats{
		Requests:        c.requests.Load(),
		Refreshes:       c.refreshes.Load(),
		RefreshFailures: c.refreshFailures.Load(),
		Queued:          c.queued.Load(),
	}
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// DoJSON performs req and decodes the envelope's data into out when out is non-nil.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return resp, err
	}
	if out != nil {
		if err := resp.Envelope.DecodeData(out); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// Do sends req with the current access token. On an authorization failure it
// obtains a fresh token (refreshing at most once across concurrent callers) and
// re-issues req exactly once. Non-2xx responses are returned as *StatusError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	token, gen := c.accessToken, c.generation
	c.mu.Unlock()
	if req.BearerToken != "" {
		token = req.BearerToken
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if req.SkipRefresh || !isAuthFailure(resp) {
		return resp, responseError(req, resp)
	}

	c.logger.Debug("Authorization failure, obtaining fresh token",
		log.FieldMethod, req.Method,
		log.FieldPath, req.Path,
		log.FieldStatusCode, resp.StatusCode)

	fresh, err := c.freshToken(ctx, gen)
	if err != nil {
		return nil, err
	}

	resp, err = c.send(ctx, req, fresh)
	if err != nil {
		return nil, err
	}
	// The retried request gets no second refresh.
	return resp, responseError(req, resp)
}

// freshToken returns a token newer than generation gen. It refreshes when no
// refresh is running, joins the queue when one is, and reuses the installed token
// when a refresh already completed after the failed request was sent.
func (c *Client) freshToken(ctx context.Context, gen uint64) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClientClosed
	}
	if c.state == stateRefreshing {
		w := make(chan refreshOutcome, 1)
		c.waiters = append(c.waiters, w)
		c.queued.Add(1)
		c.mu.Unlock()

		select {
		case out := <-w:
			return out.token, out.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if c.generation != gen && c.accessToken != "" {
		token := c.accessToken
		c.mu.Unlock()
		return token, nil
	}
	c.state = stateRefreshing
	c.mu.Unlock()

	// The refresh serves every waiter, so the initiator's cancellation must not abort it.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	defer cancel()
	token, err := c.refresh(refreshCtx)

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.state = stateIdle
	c.generation++
	if err == nil {
		c.accessToken = token
	} else {
		c.accessToken = ""
	}
	hooks := append([]func(error){}, c.onExpired...)
	c.mu.Unlock()

	for _, w := range waiters {
		w <- refreshOutcome{token: token, err: err}
	}
	if err != nil {
		for _, fn := range hooks {
			fn(err)
		}
	}
	return token, err
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// refresh exchanges the stored refresh token for a new pair. On failure the
// session is cleared before returning.
func (c *Client) refresh(ctx context.Context) (string, error) {
	refreshToken, err := c.store.Get(ctx, tokenstore.Refresh)
	if err != nil {
		c.logger.Error("Failed to read refresh token", log.FieldError, err)
		refreshToken = ""
	}
	if refreshToken == "" {
		c.refreshFailures.Add(1)
		c.clearStore(ctx)
		c.logger.Info("No refresh token stored, login required", log.FieldOperation, log.OpRefresh)
		return "", ErrLoginRequired
	}

	c.refreshes.Add(1)
	start := time.Now()
	resp, err := c.send(ctx, Request{
		Method:      http.MethodPost,
		Path:        RefreshPath,
		Body:        map[string]string{"refresh": refreshToken},
		SkipRefresh: true,
	}, "")
	if err == nil && !resp.OK() {
		err = &StatusError{Method: http.MethodPost, Path: RefreshPath, StatusCode: resp.StatusCode, Envelope: resp.Envelope}
	}
	var pair tokenPair
	if err == nil {
		pair, err = decodeTokenPair(resp)
	}
	if err != nil {
		c.refreshFailures.Add(1)
		c.clearStore(ctx)
		c.logger.Warn("Token refresh failed, session cleared",
			log.FieldOperation, log.OpRefresh,
			log.FieldError, err,
			log.FieldDuration, time.Since(start).Milliseconds())
		return "", &RefreshError{Err: err}
	}

	if pair.Refresh == "" {
		pair.Refresh = refreshToken
	}
	if err := c.store.Store(ctx, tokenstore.Access, pair.Access); err != nil {
		c.logger.Error("Failed to persist refreshed access token", log.FieldError, err)
	}
	if err := c.store.Store(ctx, tokenstore.Refresh, pair.Refresh); err != nil {
		c.logger.Error("Failed to persist refreshed refresh token", log.FieldError, err)
	}

	c.logger.Info("Access token refreshed",
		log.FieldOperation, log.OpRefresh,
		log.FieldDuration, time.Since(start).Milliseconds())
	return pair.Access, nil
}

// decodeTokenPair accepts the pair inside the envelope's data or at the top level.
func decodeTokenPair(resp *Response) (tokenPair, error) {
	var pair tokenPair
	if resp.Envelope.HasData() {
		_ = json.Unmarshal(resp.Envelope.Data, &pair)
	}
	if pair.Access == "" {
		_ = json.Unmarshal(resp.Body, &pair)
	}
	if pair.Access == "" {
		return tokenPair{}, errors.New("refresh response carries no access token")
	}
	return pair, nil
}

func (c *Client) clearStore(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error("Failed to clear token store", log.FieldError, err)
	}
}

func (c *Client) send(ctx context.Context, req Request, token string) (*Response, error) {
	c.requests.Add(1)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", req.Method, req.Path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", req.Method, req.Path, err)
	}

	c.logger.Debug("Backend request completed",
		log.FieldMethod, req.Method,
		log.FieldPath, req.Path,
		log.FieldStatusCode, httpResp.StatusCode,
		log.FieldDuration, time.Since(start).Milliseconds())

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       raw,
		Envelope:   ParseEnvelope(raw),
	}, nil
}

// isAuthFailure prefers the envelope's error kind and falls back to the status code.
func isAuthFailure(resp *Response) bool {
	return resp.Envelope.AuthErrorCode() != "" || resp.StatusCode == http.StatusUnauthorized
}

func responseError(req Request, resp *Response) error {
	if resp.OK() && resp.Envelope.AuthErrorCode() == "" {
		return nil
	}
	return &StatusError{Method: req.Method, Path: req.Path, StatusCode: resp.StatusCode, Envelope: resp.Envelope}
}
