package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the registered claims of a bearer token, read without
// verification. They are informational only: the client never decides a
// token is expired on its own, the backend tells it with a 401.
type TokenClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// InspectToken decodes the claims of a JWT bearer token. ok is false for
// opaque (non-JWT) tokens.
func InspectToken(token string) (TokenClaims, bool) {
	if token == "" {
		return TokenClaims{}, false
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return TokenClaims{}, false
	}

	var tc TokenClaims
	tc.Subject = claims.Subject
	if claims.IssuedAt != nil {
		tc.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		tc.ExpiresAt = claims.ExpiresAt.Time
	}
	return tc, true
}
