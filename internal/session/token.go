package session

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoUserClaim = errors.New("token carries no user id")

// UserIDFromToken reads the user id claim from a JWT without verifying its
// signature; the backend verifies every token it receives, the client only needs
// to know whose details to fetch. "user_id" is preferred, "sub" is the fallback.
func UserIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	for _, key := range []string{"user_id", "sub"} {
		switch v := claims[key].(type) {
		case string:
			if v != "" {
				return v, nil
			}
		case float64:
			return strconv.FormatInt(int64(v), 10), nil
		}
	}
	return "", ErrNoUserClaim
}
