package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type authState struct{ loading, authenticated bool }

func (a authState) IsLoading() bool       { return a.loading }
func (a authState) IsAuthenticated() bool { return a.authenticated }

func TestGuard(t *testing.T) {
	tests := []struct {
		name  string
		state AuthState
		want  Decision
	}{
		{"no session", nil, RedirectLogin},
		{"restoring", authState{loading: true}, ShowLoader},
		{"loading wins over authenticated", authState{loading: true, authenticated: true}, ShowLoader},
		{"signed out", authState{}, RedirectLogin},
		{"signed in", authState{authenticated: true}, Render},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Guard(tt.state))
		})
	}
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "render", Render.String())
	assert.Equal(t, "show_loader", ShowLoader.String())
	assert.Equal(t, "redirect_login", RedirectLogin.String())
}
