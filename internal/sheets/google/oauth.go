package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// DefaultTokenFile is where finboard-sheets-auth saves the user token.
const DefaultTokenFile = "token.json"

var errNoOAuthClient = errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")

// OAuthConfigFromEnv reads the installed-app OAuth client from
// GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE.
func OAuthConfigFromEnv() (*oauth2.Config, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"))
	var b []byte
	switch {
	case inline != "":
		b = []byte(inline)
	case file != "":
		var err error
		if b, err = os.ReadFile(file); err != nil {
			return nil, fmt.Errorf("read oauth client file: %w", err)
		}
	default:
		return nil, errNoOAuthClient
	}
	cfg, err := goauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// TokenFile is the configured token path, GOOGLE_OAUTH_TOKEN_FILE or
// DefaultTokenFile.
func TokenFile() string {
	if f := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")); f != "" {
		return f
	}
	return DefaultTokenFile
}

// SaveToken writes tok readable by the owner only.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

func parseToken(b []byte) (*oauth2.Token, error) {
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("oauth token has neither access nor refresh token")
	}
	return &tok, nil
}

// userTokenOptions authenticates as the user who ran finboard-sheets-auth.
// ok is false when no user token is configured.
func userTokenOptions(ctx context.Context) (opts []goption.ClientOption, ok bool, err error) {
	var raw []byte
	if inline := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_JSON")); inline != "" {
		raw = []byte(inline)
	} else if file := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")); file != "" {
		if raw, err = os.ReadFile(file); err != nil {
			return nil, false, fmt.Errorf("read oauth token file: %w", err)
		}
	} else {
		return nil, false, nil
	}

	cfg, err := OAuthConfigFromEnv()
	if err != nil {
		return nil, false, err
	}
	tok, err := parseToken(raw)
	if err != nil {
		return nil, false, err
	}
	return []goption.ClientOption{goption.WithTokenSource(cfg.TokenSource(ctx, tok))}, true, nil
}
