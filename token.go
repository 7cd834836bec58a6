package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry inspects a bearer token that happens to be a JWT and returns
// its expiration claim. The signature is NOT verified: the result is only
// useful for logging and diagnostics, never as an authorization decision.
// The identity service remains the sole authority on token validity.
func TokenExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}

	return exp.Time, true
}
