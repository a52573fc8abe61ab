// Package http serves the finboard pages. Every browser session gets its own
// API client, auth controller and view state from the Registry; handlers
// render snapshots of that state with html/template and htmx partials.
package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"finboard/internal/apiclient"
	"finboard/internal/cache"
	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/middleware/ratelimit"
	"finboard/internal/middleware/security"
	"finboard/internal/middleware/trace"
	"finboard/internal/services"
	appweb "finboard/web"
)

const (
	defaultReadyWait  = 2 * time.Second
	cacheCleanupEvery = 10 * time.Minute
	staticMaxAge      = 3600
	loginPath         = "/login"
	dashboardPath     = "/"
	managementPath    = "/transaction-management"

	msgSessionUnavailable = "Session unavailable, please retry"
)

var errTemplatesNotLoaded = errors.New("templates not loaded")

// Check is a named readiness probe.
type Check func(ctx context.Context) error

type Options struct {
	Addr     string
	Sessions *Registry
	Logger   *log.Logger

	// LoginRateLimit caps POST /login and /signup per client per minute.
	LoginRateLimit int
	// ReadyWait bounds how long a request waits for a session to be restored
	// before the loader page is shown.
	ReadyWait time.Duration
	Checks    map[string]Check
}

type Server struct {
	http.Server
	templates *template.Template
	sessions  *Registry
	logger    *log.Logger
	checks    map[string]Check
	readyWait time.Duration
	started   time.Time

	cacheManager     *cache.Manager
	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	if opts.ReadyWait <= 0 {
		opts.ReadyWait = defaultReadyWait
	}
	limit := ratelimit.PerMinute(opts.LoginRateLimit)
	if opts.LoginRateLimit <= 0 {
		limit = ratelimit.DefaultConfig()
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
		},
		sessions:         opts.Sessions,
		logger:           logger,
		checks:           opts.Checks,
		readyWait:        opts.ReadyWait,
		started:          time.Now(),
		cacheManager:     cache.NewManager(logger.WithComponent(log.ComponentCache)),
		securityDetector: security.NewDetector(logger),
		rateLimiter:      ratelimit.NewLimiter(limit),
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	if opts.Sessions != nil {
		s.cacheManager.Register(opts.Sessions.Cleaner())
	}
	s.cacheManager.StartCleanup(cacheCleanupEvery)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(staticMaxAge)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("GET /signup", s.handleSignupPage)
	mux.HandleFunc("POST /signup", s.handleSignup)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.HandleFunc("GET /{$}", s.protect(s.handleDashboard))
	mux.HandleFunc("GET /budget-management", s.protect(s.handleBudgetManagement))
	mux.HandleFunc("GET /transactions-overview", s.protect(s.handleTransactionsOverview))
	mux.HandleFunc("GET /transactions-overview/table", s.protect(s.handleTransactionsTable))
	mux.HandleFunc("GET /transaction-management", s.protect(s.handleTransactionManagement))
	mux.HandleFunc("GET /transaction-management/{resource}", s.protect(s.handlePanel))

	for _, name := range panelOrder {
		base := "/" + name
		mux.HandleFunc("GET "+base+"/new", s.protect(s.withPanel(name, s.handlePanelNew)))
		mux.HandleFunc("GET "+base+"/{id}/edit", s.protect(s.withPanel(name, s.handlePanelEdit)))
		mux.HandleFunc("POST "+base, s.protect(s.withPanel(name, s.handlePanelSubmit)))
		mux.HandleFunc("POST "+base+"/close", s.protect(s.withPanel(name, s.handlePanelClose)))
		mux.HandleFunc("POST "+base+"/{id}", s.protect(s.withPanel(name, s.handlePanelSubmit)))
		mux.HandleFunc("DELETE "+base+"/{id}", s.protect(s.withPanel(name, s.handlePanelDelete)))
	}

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limitAuth := s.rateLimiter.Middleware(
		s.securityDetector.ExtractClientIP,
		func(r *http.Request) bool {
			return r.Method == http.MethodPost && (r.URL.Path == "/login" || r.URL.Path == "/signup")
		},
		func(w http.ResponseWriter, r *http.Request) {
			s.logger.WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
				log.FieldPath, r.URL.Path)
			TooManyRequestsError("Too many attempts. Please try again later.").Write(w)
		},
	)

	var handler http.Handler = mux
	handler = security.NoStore(handler)
	handler = limitAuth(handler)
	handler = headers.Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)
	handler = log.Middleware(logger)(handler)
	s.Handler = handler

	return s
}

// Shutdown gracefully shuts down the server, its cleanup routines and every
// browser session.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
		if s.sessions != nil {
			s.sessions.Close()
		}
	})
	return shutdownErr
}

// sessionHandler serves a request on behalf of a resolved browser session.
type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *BrowserSession)

// resolve finds or opens the caller's session and tags the request logger
// with its id.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (*BrowserSession, *http.Request, bool) {
	if s.sessions == nil {
		InternalServerError(msgSessionUnavailable).Write(w)
		return nil, r, false
	}
	sess, err := s.sessions.Resolve(w, r)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to open browser session", log.FieldError, err)
		InternalServerError(msgSessionUnavailable).Write(w)
		return nil, r, false
	}
	ctx := log.WithContext(r.Context(), log.FromContext(r.Context()).With(log.FieldSessionID, sess.ID))
	return sess, r.WithContext(ctx), true
}

// protect runs h only for signed-in sessions. While the stored session is
// still being restored the loader page is shown instead.
func (s *Server) protect(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, r, ok := s.resolve(w, r)
		if !ok {
			return
		}
		sess.WaitReady(r.Context(), s.readyWait)

		switch Guard(sess) {
		case ShowLoader:
			s.renderLoader(w, r)
		case RedirectLogin:
			s.redirect(w, r, loginPath)
		default:
			h(w, r, sess)
		}
	}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// redirect navigates the browser to url: HX-Redirect for htmx requests, a
// 303 otherwise.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, url string) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect(url).Write(w)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func (s *Server) renderLoader(w http.ResponseWriter, r *http.Request) {
	if isHTMX(r) {
		NewHTMXResponse().Header("HX-Refresh", "true").Write(w)
		return
	}
	s.render(w, r, http.StatusOK, "loader.html", pageData{Title: "Loading"})
}

// sessionGone reports errors after which the session has to sign in again.
func sessionGone(err error) bool {
	return apiclient.IsSessionExpired(err) || errors.Is(err, apiclient.ErrClientClosed)
}

// fail answers a failed backend call. Expired sessions go back to the login
// page; anything else is logged and shown as a short message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if sessionGone(err) {
		s.redirect(w, r, loginPath)
		return
	}
	s.logFailure(r, err)
	ErrorResponse(http.StatusBadGateway, errorText(err, fallback)).Write(w)
}

func (s *Server) logFailure(r *http.Request, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
		log.FieldPath, r.URL.Path,
		log.FieldError, err)
}

// errorText is the message shown for a failed backend call: a domain
// failure's own message, otherwise fallback.
func errorText(err error, fallback string) string {
	var failure *services.Failure
	if errors.As(err, &failure) && failure.Message != "" {
		return failure.Message
	}
	return fallback
}

// render executes a template and writes it with status.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	b := NewHTMXResponse().Status(status)
	if err := b.Render(s.templates, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			"template", name,
			log.FieldError, err)
	}
	b.Write(w)
}

// pageData is the common data of every full page.
type pageData struct {
	Title   string
	Active  string
	User    string
	Error   string
	Content any
}

func newPage(sess *BrowserSession, title, active string) pageData {
	return pageData{Title: title, Active: active, User: sess.UserEmail()}
}

var templateFuncs = template.FuncMap{
	"money":     func(a core.Amount) string { return a.Display() },
	"monthName": core.MonthName,
	"add":       func(a, b int) int { return a + b },
	// dict builds a map from alternating keys and values for partials.
	"dict": func(kv ...any) (map[string]any, error) {
		if len(kv)%2 != 0 {
			return nil, errors.New("dict: odd number of arguments")
		}
		m := make(map[string]any, len(kv)/2)
		for i := 0; i < len(kv); i += 2 {
			k, ok := kv[i].(string)
			if !ok {
				return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
			}
			m[k] = kv[i+1]
		}
		return m, nil
	},
}
