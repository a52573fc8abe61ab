package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"finboard/internal/apiclient"
	"finboard/internal/cache"
	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/services"
	"finboard/internal/session"
	"finboard/internal/tokenstore"
	"finboard/internal/views"
)

const (
	defaultCookieName  = "finboard_session"
	defaultIdleTTL     = 12 * time.Hour
	defaultMaxSessions = 1000
	initTimeout        = 15 * time.Second
)

// BrowserSession is everything one browser tab would own: its API client and
// token namespace, the auth controller, the services and the page state.
type BrowserSession struct {
	ID     string
	Client *apiclient.Client
	Auth   *session.Controller

	Summary      *services.SummaryService
	Categories   *services.CategoryService
	Transactions *services.TransactionService
	Overview     *views.Overview

	CategoryView *views.Categories
	IncomeView   *views.Incomes
	ExpenseView  *views.Expenses
	BudgetView   *views.Budgets

	panels map[string]panel
	store  *tokenstore.Store
	ready  chan struct{}
	result session.Result
}

// Panel returns the CRUD panel mounted at path ("categories", "incomes", ...).
func (s *BrowserSession) Panel(path string) (panel, bool) {
	p, ok := s.panels[path]
	return p, ok
}

// IsLoading and IsAuthenticated make the session an AuthState.
func (s *BrowserSession) IsLoading() bool       { return s.Auth.IsLoading() }
func (s *BrowserSession) IsAuthenticated() bool { return s.Auth.IsAuthenticated() }

// UserEmail is the signed-in user's email, or "".
func (s *BrowserSession) UserEmail() string {
	if u, ok := s.Auth.User(); ok {
		return u.Email
	}
	return ""
}

// WaitReady blocks until the stored session has been restored, ctx ends or
// max elapses. It reports whether initialization finished.
func (s *BrowserSession) WaitReady(ctx context.Context, max time.Duration) bool {
	select {
	case <-s.ready:
		return true
	default:
	}
	t := time.NewTimer(max)
	defer t.Stop()
	select {
	case <-s.ready:
		return true
	case <-ctx.Done():
		return false
	case <-t.C:
		return false
	}
}

// InitResult is the outcome of restoring the session; valid once WaitReady
// reports true.
func (s *BrowserSession) InitResult() session.Result {
	select {
	case <-s.ready:
		return s.result
	default:
		return session.Result{}
	}
}

func (s *BrowserSession) close(forget bool) {
	<-s.ready
	s.Auth.Wait()
	_ = s.Client.Close()
	if forget {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.store.Clear(ctx)
	}
}

type RegistryOptions struct {
	Backend tokenstore.Backend
	Cipher  *tokenstore.Cipher

	APIBaseURL        string
	APITimeout        time.Duration
	APIRefreshTimeout time.Duration
	HTTPClient        *http.Client

	Publisher core.ActivityPublisher
	Logger    *log.Logger

	CookieName   string
	CookieSecure bool
	IdleTTL      time.Duration
	MaxSessions  int

	// ForgetOnEvict clears the stored tokens of evicted sessions. Set it for
	// the memory backend, where nothing could restore them anyway.
	ForgetOnEvict bool

	Now func() time.Time
}

// Registry maps session cookies to live browser sessions. Idle sessions and
// the least recently used ones past MaxSessions are evicted and closed.
type Registry struct {
	opts     RegistryOptions
	logger   *log.Logger
	sessions *cache.LRUCache[*BrowserSession]

	mu      sync.Mutex
	created int64
	closing sync.WaitGroup
}

func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Backend == nil {
		return nil, errors.New("token backend is required")
	}
	if opts.Cipher == nil {
		return nil, errors.New("token cipher is required")
	}
	if opts.APIBaseURL == "" {
		return nil, errors.New("api base URL is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Publisher == nil {
		opts.Publisher = core.NopPublisher{}
	}
	if opts.CookieName == "" {
		opts.CookieName = defaultCookieName
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = defaultMaxSessions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Registry{
		opts:   opts,
		logger: opts.Logger.WithComponent(log.ComponentSession),
	}
	r.sessions = cache.NewLRUCache[*BrowserSession](opts.MaxSessions, opts.IdleTTL).
		OnEvict(func(id string, s *BrowserSession) {
			r.logger.Info("Browser session evicted", log.FieldSessionID, id)
			r.closing.Add(1)
			go func() {
				defer r.closing.Done()
				s.close(opts.ForgetOnEvict)
			}()
		})
	return r, nil
}

// Resolve returns the session named by the request cookie, creating one (and
// setting the cookie) when there is none. A known cookie whose session is no
// longer in memory is reopened under the same id so persistent token
// backends can restore it.
func (r *Registry) Resolve(w http.ResponseWriter, req *http.Request) (*BrowserSession, error) {
	id := ""
	if c, err := req.Cookie(r.opts.CookieName); err == nil {
		if parsed, err := uuid.Parse(c.Value); err == nil {
			id = parsed.String()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if s, ok := r.sessions.Get(id); ok {
			return s, nil
		}
	}

	fresh := id == ""
	if fresh {
		id = uuid.NewString()
	}
	s, err := r.open(id)
	if err != nil {
		return nil, err
	}
	r.sessions.Set(id, s)
	r.created++
	if fresh {
		http.SetCookie(w, r.cookie(id))
	}
	r.logger.InfoContext(req.Context(), "Browser session opened", log.FieldSessionID, id, "fresh", fresh)
	return s, nil
}

// Lookup returns a live session without creating one.
func (r *Registry) Lookup(req *http.Request) (*BrowserSession, bool) {
	c, err := req.Cookie(r.opts.CookieName)
	if err != nil {
		return nil, false
	}
	return r.sessions.Get(c.Value)
}

func (r *Registry) cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     r.opts.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (r *Registry) open(id string) (*BrowserSession, error) {
	logger := r.opts.Logger.With(log.FieldSessionID, id)
	store := tokenstore.New(r.opts.Backend, id, r.opts.Cipher, logger)
	client, err := apiclient.New(apiclient.Config{
		BaseURL:        r.opts.APIBaseURL,
		Timeout:        r.opts.APITimeout,
		RefreshTimeout: r.opts.APIRefreshTimeout,
		HTTPClient:     r.opts.HTTPClient,
		Logger:         logger,
	}, store)
	if err != nil {
		return nil, fmt.Errorf("create api client: %w", err)
	}

	s := &BrowserSession{
		ID:     id,
		Client: client,
		store:  store,
		ready:  make(chan struct{}),
	}
	s.Auth = session.New(client, session.Options{
		SessionID: id,
		Publisher: r.opts.Publisher,
		Logger:    logger,
	})

	deps := views.Deps{
		SessionID: id,
		User:      s.UserEmail,
		Publisher: r.opts.Publisher,
		Logger:    logger,
	}
	s.Summary = services.NewSummaryService(client, logger)
	s.Categories = services.NewCategoryService(client, logger)
	s.Transactions = services.NewTransactionService(client, logger)
	s.Overview = views.NewOverview(s.Transactions, logger)
	s.CategoryView = views.NewCategories(s.Categories, deps)
	s.IncomeView = views.NewIncomes(services.NewIncomeService(client, logger), deps)
	s.ExpenseView = views.NewExpenses(services.NewExpenseService(client, logger), deps)
	s.BudgetView = views.NewBudgets(services.NewBudgetService(client, logger), deps, r.opts.Now)
	s.panels = newPanels(s)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		s.result = s.Auth.Initialize(ctx)
		close(s.ready)
	}()
	return s, nil
}

// Len is the number of live sessions.
func (r *Registry) Len() int { return r.sessions.Size() }

// Created counts sessions opened since start.
func (r *Registry) Created() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.created
}

// Cleaner lets a cache.Manager expire idle sessions.
func (r *Registry) Cleaner() cache.Cleaner { return r.sessions }

// Close closes every live session and waits for evicted ones to finish.
func (r *Registry) Close() {
	n := r.sessions.Purge()
	r.closing.Wait()
	r.logger.Info("Browser sessions closed", "count", n)
}
