package http

import (
	"net/http"

	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/views"
)

type authPage struct {
	pageData
	Signup  bool
	Action  string
	Form    core.AuthForm
	Errors  core.FieldErrors
	Message string
}

func newAuthPage(signup bool) authPage {
	p := authPage{Signup: signup, Action: "/login", pageData: pageData{Title: "Login"}}
	if signup {
		p.Action = "/signup"
		p.Title = "Register"
	}
	return p
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	s.showAuthPage(w, r, false)
}

func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	s.showAuthPage(w, r, true)
}

// showAuthPage renders the login or signup form. A signed-in session is sent
// to the dashboard; a pending auth message (such as an expired session) is
// shown once.
func (s *Server) showAuthPage(w http.ResponseWriter, r *http.Request, signup bool) {
	sess, r, ok := s.resolve(w, r)
	if !ok {
		return
	}
	sess.WaitReady(r.Context(), s.readyWait)
	switch Guard(sess) {
	case Render:
		s.redirect(w, r, dashboardPath)
		return
	case ShowLoader:
		s.renderLoader(w, r)
		return
	}

	page := newAuthPage(signup)
	page.Message = sess.Auth.Message()
	sess.Auth.ClearMessage()
	s.render(w, r, http.StatusOK, "auth.html", page)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.submitAuth(w, r, false)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	s.submitAuth(w, r, true)
}

func (s *Server) submitAuth(w http.ResponseWriter, r *http.Request, signup bool) {
	sess, r, ok := s.resolve(w, r)
	if !ok {
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	// A restore still running would overwrite the fresh sign-in.
	sess.WaitReady(r.Context(), s.readyWait)
	ctx := r.Context()
	logger := log.FromContext(ctx)

	form := ParseAuthForm(r.PostForm)
	page := newAuthPage(signup)
	page.Form = core.AuthForm{Email: form.Email}

	if errs := core.ValidateForm(&form); errs != nil {
		page.Errors = errs
		s.render(w, r, http.StatusUnprocessableEntity, "auth.html", page)
		return
	}

	var (
		accepted bool
		err      error
		fallback = "Login failed"
	)
	if signup {
		fallback = "Registration failed"
		accepted, err = sess.Auth.Register(ctx, form.Email, form.Password)
	} else {
		accepted, err = sess.Auth.Login(ctx, form.Email, form.Password)
	}
	if err != nil {
		logger.ErrorContext(ctx, "Authentication request failed", "signup", signup, log.FieldError, err)
		page.Errors = core.FieldErrors{views.RootField: errorText(err, fallback)}
		s.render(w, r, http.StatusBadGateway, "auth.html", page)
		return
	}
	if !accepted {
		msg := sess.Auth.Message()
		sess.Auth.ClearMessage()
		if msg == "" {
			msg = fallback
		}
		page.Errors = core.FieldErrors{views.RootField: msg}
		s.render(w, r, http.StatusUnauthorized, "auth.html", page)
		return
	}
	s.redirect(w, r, dashboardPath)
}

// handleLogout signs out and returns to the login page. The backend is told
// in the background; local state is cleared either way.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, r, ok := s.resolve(w, r)
	if !ok {
		return
	}
	sess.WaitReady(r.Context(), s.readyWait)
	if err := sess.Auth.Logout(r.Context()); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Logout failed", log.FieldError, err)
	}
	s.redirect(w, r, loginPath)
}
