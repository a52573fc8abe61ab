package http

// Decision is what a protected route does for the current session state.
type Decision int

const (
	Render Decision = iota
	ShowLoader
	RedirectLogin
)

func (d Decision) String() string {
	switch d {
	case ShowLoader:
		return "show_loader"
	case RedirectLogin:
		return "redirect_login"
	default:
		return "render"
	}
}

// AuthState is the part of a session the guard looks at.
type AuthState interface {
	IsLoading() bool
	IsAuthenticated() bool
}

// Guard decides how a protected route responds. Loading wins over everything
// so a page never flashes the login form while a session is being restored.
func Guard(state AuthState) Decision {
	switch {
	case state == nil:
		return RedirectLogin
	case state.IsLoading():
		return ShowLoader
	case !state.IsAuthenticated():
		return RedirectLogin
	default:
		return Render
	}
}
