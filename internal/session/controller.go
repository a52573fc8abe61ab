// Package session tracks who is signed in for one client instance: login,
// registration, logout and restoring a session from a stored refresh token.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"finboard/internal/apiclient"
	"finboard/internal/core"
	"finboard/internal/log"
)

const (
	LoginPath    = "/auth/login"
	RegisterPath = "/auth/register"
	LogoutPath   = "/auth/logout"
	UserPath     = "/users/"

	defaultLogoutTimeout = 5 * time.Second

	msgLoginFailed        = "Login failed"
	msgRegistrationFailed = "Registration failed"
	msgUserFetchFailed    = "Failed to fetch user details"
	msgSessionExpired     = "Your session has expired. Please log in again."
)

// Status is the outcome of Initialize.
type Status int

const (
	StatusUnauthenticated Status = iota
	StatusAuthenticated
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusFailed:
		return "failed"
	default:
		return "unauthenticated"
	}
}

// Result reports how a stored session was restored.
type Result struct {
	Status Status
	User   core.User
	Reason string
}

func Authenticated(u core.User) Result { return Result{Status: StatusAuthenticated, User: u} }
func Unauthenticated() Result         { return Result{Status: StatusUnauthenticated} }
func Failed(reason string) Result     { return Result{Status: StatusFailed, Reason: reason} }

type Options struct {
	SessionID     string
	Publisher     core.ActivityPublisher
	Logger        *log.Logger
	LogoutTimeout time.Duration
}

// Controller is safe for concurrent use.
type Controller struct {
	client        *apiclient.Client
	publisher     core.ActivityPublisher
	logger        *log.Logger
	sessionID     string
	logoutTimeout time.Duration

	mu           sync.RWMutex
	user         *core.User
	initializing bool
	inFlight     int
	message      string

	background sync.WaitGroup
}

// New creates a controller in the loading state; call Initialize to resolve it.
func New(client *apiclient.Client, opts Options) *Controller {
	if opts.Publisher == nil {
		opts.Publisher = core.NopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.LogoutTimeout <= 0 {
		opts.LogoutTimeout = defaultLogoutTimeout
	}
	c := &Controller{
		client:        client,
		publisher:     opts.Publisher,
		logger:        opts.Logger.WithComponent(log.ComponentSession).With(log.FieldSessionID, opts.SessionID),
		sessionID:     opts.SessionID,
		logoutTimeout: opts.LogoutTimeout,
		initializing:  true,
	}
	client.OnSessionExpired(c.expire)
	return c
}

func (c *Controller) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user != nil
}

// IsLoading is true until Initialize resolves and while a login or
// registration is in flight.
func (c *Controller) IsLoading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initializing || c.inFlight > 0
}

// User returns the signed-in user.
func (c *Controller) User() (core.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return core.User{}, false
	}
	return *c.user, true
}

// Message is the last user-facing auth message (e.g. why a login failed).
func (c *Controller) Message() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.message
}

// ClearMessage drops the pending auth message once it has been shown.
func (c *Controller) ClearMessage() {
	c.mu.Lock()
	c.message = ""
	c.mu.Unlock()
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authPayload is the data of a login or register response. The backend spells
// the token fields either way on both endpoints.
type authPayload struct {
	Access       string `json:"access"`
	AccessToken  string `json:"access_token"`
	Refresh      string `json:"refresh"`
	RefreshToken string `json:"refresh_token"`
	User         struct {
		Email    string `json:"email"`
		Username string `json:"username"`
	} `json:"user"`
}

func (p authPayload) access() string  { return firstNonEmpty(p.AccessToken, p.Access) }
func (p authPayload) refresh() string { return firstNonEmpty(p.RefreshToken, p.Refresh) }

// Login signs in with email and password. Rejected credentials return false
// with Message set; only transport and client lifecycle errors are returned.
func (c *Controller) Login(ctx context.Context, email, password string) (bool, error) {
	c.begin()
	defer c.end()

	resp, err := c.client.Do(ctx, apiclient.Request{
		Method:      http.MethodPost,
		Path:        LoginPath,
		Body:        credentials{Email: email, Password: password},
		SkipRefresh: true,
	})
	if err != nil {
		return c.authFailure(log.OpLogin, err, msgLoginFailed)
	}
	if !resp.Envelope.Success || !resp.Envelope.HasData() {
		return c.reject(log.OpLogin, firstNonEmpty(resp.Envelope.Message, msgLoginFailed)), nil
	}

	var data authPayload
	if err := resp.Envelope.DecodeData(&data); err != nil || data.access() == "" {
		return c.reject(log.OpLogin, msgLoginFailed), nil
	}

	if err := c.client.SetTokens(ctx, data.access(), data.refresh()); err != nil {
		return false, fmt.Errorf("store tokens: %w", err)
	}
	user := core.User{
		Email:    firstNonEmpty(data.User.Email, data.User.Username, email),
		Username: data.User.Username,
	}
	if id, err := UserIDFromToken(data.refresh()); err == nil {
		user.ID = json.Number(id)
	}
	c.signIn(ctx, user, core.ActivityLoggedIn, log.OpLogin)
	return true, nil
}

// Register creates an account and signs it in.
func (c *Controller) Register(ctx context.Context, email, password string) (bool, error) {
	c.begin()
	defer c.end()

	resp, err := c.client.Do(ctx, apiclient.Request{
		Method:      http.MethodPost,
		Path:        RegisterPath,
		Body:        credentials{Email: email, Password: password},
		SkipRefresh: true,
	})
	if err != nil {
		return c.authFailure(log.OpRegister, err, msgRegistrationFailed)
	}
	env := resp.Envelope
	if !env.Success || !env.HasData() {
		return c.reject(log.OpRegister, firstNonEmpty(env.Message, env.ErrorString(), msgRegistrationFailed)), nil
	}

	var data authPayload
	if err := env.DecodeData(&data); err != nil || data.access() == "" {
		return c.reject(log.OpRegister, msgRegistrationFailed), nil
	}

	if err := c.client.SetTokens(ctx, data.access(), data.refresh()); err != nil {
		return false, fmt.Errorf("store tokens: %w", err)
	}
	user := core.User{
		Email:    firstNonEmpty(data.User.Email, data.User.Username, email),
		Username: data.User.Username,
	}
	if id, err := UserIDFromToken(data.refresh()); err == nil {
		user.ID = json.Number(id)
	}
	c.signIn(ctx, user, core.ActivityRegistered, log.OpRegister)
	return true, nil
}

// Logout clears local state immediately and tells the backend in the
// background; a failed backend call is only logged.
func (c *Controller) Logout(ctx context.Context) error {
	access := c.client.AccessToken()
	refresh, err := c.client.RefreshToken(ctx)
	if err != nil {
		c.logger.Warn("Could not read refresh token for logout", log.FieldError, err)
	}

	if access != "" {
		c.background.Add(1)
		go func() {
			defer c.background.Done()
			bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.logoutTimeout)
			defer cancel()
			var body any
			if refresh != "" {
				body = map[string]string{"refresh_token": refresh}
			}
			_, err := c.client.Do(bgCtx, apiclient.Request{
				Method:      http.MethodPost,
				Path:        LogoutPath,
				Body:        body,
				SkipRefresh: true,
				BearerToken: access,
			})
			if err != nil {
				c.logger.Warn("Backend logout failed",
					log.FieldOperation, log.OpLogout,
					log.FieldError, apiclient.ErrorMessage(err, ""))
			}
		}()
	}

	user := c.currentEmail()
	c.mu.Lock()
	c.user = nil
	c.message = ""
	c.initializing = false
	c.mu.Unlock()

	if err := c.client.ClearSession(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	c.logger.Info("User logged out", log.FieldOperation, log.OpLogout, log.FieldUser, user)
	c.publish(ctx, core.NewActivityEvent(core.ActivityLoggedOut, c.sessionID, user))
	return nil
}

// Wait blocks until background logout calls finish.
func (c *Controller) Wait() {
	c.background.Wait()
}

// Initialize restores the session from the stored refresh token.
func (c *Controller) Initialize(ctx context.Context) Result {
	result := c.initialize(ctx)

	c.mu.Lock()
	c.initializing = false
	if result.Status == StatusAuthenticated {
		u := result.User
		c.user = &u
	} else {
		c.user = nil
	}
	c.mu.Unlock()

	c.logger.Info("Session initialized",
		log.FieldOperation, log.OpInit,
		"status", result.Status.String(),
		"reason", result.Reason)
	return result
}

func (c *Controller) initialize(ctx context.Context) Result {
	if err := c.client.Init(ctx); err != nil {
		return Failed(err.Error())
	}
	refresh, err := c.client.RefreshToken(ctx)
	if err != nil {
		c.clear(ctx)
		return Failed(err.Error())
	}
	if refresh == "" {
		return Unauthenticated()
	}

	userID, err := UserIDFromToken(refresh)
	if err != nil {
		c.clear(ctx)
		return Failed(err.Error())
	}

	resp, err := c.client.Get(ctx, UserPath+url.PathEscape(userID), nil)
	if err != nil {
		c.clear(ctx)
		return Failed(apiclient.ErrorMessage(err, msgUserFetchFailed))
	}
	env := resp.Envelope
	var user core.User
	if !env.Success || env.DecodeData(&user) != nil {
		c.clear(ctx)
		return Failed(firstNonEmpty(env.Message, env.ErrorString(), msgUserFetchFailed))
	}
	return Authenticated(user)
}

// expire runs when the client gives up on refreshing.
func (c *Controller) expire(err error) {
	user := c.currentEmail()
	c.mu.Lock()
	c.user = nil
	c.message = msgSessionExpired
	c.mu.Unlock()

	c.logger.Info("Session expired", log.FieldUser, user, log.FieldError, err)
	ctx, cancel := context.WithTimeout(context.Background(), c.logoutTimeout)
	defer cancel()
	c.publish(ctx, core.NewActivityEvent(core.ActivitySessionExpired, c.sessionID, user))
}

func (c *Controller) signIn(ctx context.Context, user core.User, event core.ActivityType, op string) {
	c.mu.Lock()
	c.user = &user
	c.message = ""
	c.initializing = false
	c.mu.Unlock()

	c.logger.Info("User signed in", log.FieldOperation, op, log.FieldUser, user.Email)
	c.publish(ctx, core.NewActivityEvent(event, c.sessionID, user.Email))
}

// authFailure turns backend rejections into a message and passes the rest up.
func (c *Controller) authFailure(op string, err error, fallback string) (bool, error) {
	var se *apiclient.StatusError
	if errors.As(err, &se) {
		return c.reject(op, rejectionMessage(se.Envelope, fallback)), nil
	}
	c.logger.Error("Auth request failed", log.FieldOperation, op, log.FieldError, err)
	return false, fmt.Errorf("%s: %w", op, err)
}

func (c *Controller) reject(op, message string) bool {
	c.mu.Lock()
	c.message = message
	c.mu.Unlock()
	c.logger.Info("Auth rejected", log.FieldOperation, op, "message", message)
	return false
}

func (c *Controller) clear(ctx context.Context) {
	if err := c.client.ClearSession(ctx); err != nil {
		c.logger.Error("Failed to clear session", log.FieldError, err)
	}
}

func (c *Controller) publish(ctx context.Context, ev core.ActivityEvent) {
	if err := c.publisher.PublishActivity(ctx, ev); err != nil {
		c.logger.Warn("Failed to publish activity event",
			log.FieldEventType, string(ev.Type),
			log.FieldError, err)
	}
}

func (c *Controller) begin() {
	c.mu.Lock()
	c.inFlight++
	c.mu.Unlock()
}

func (c *Controller) end() {
	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
}

func (c *Controller) currentEmail() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return ""
	}
	return c.user.Email
}

// rejectionMessage picks the most specific reason the backend gave for
// refusing credentials.
func rejectionMessage(env apiclient.Envelope, fallback string) string {
	return firstNonEmpty(
		env.Message,
		env.ErrorString(),
		env.FirstFieldError(),
		env.Detail,
		env.FieldError("non_field_errors"),
		fallback,
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
