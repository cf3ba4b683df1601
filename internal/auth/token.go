package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpiry decodes the exp claim of a JWT without verifying it. The
// client cannot verify the signature and only needs a hint to avoid sending
// a token that is certain to be rejected. ok is false when token is not a
// JWT; a JWT without exp returns the zero time and ok.
func tokenExpiry(token string) (exp time.Time, ok bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, true
	}
	return claims.ExpiresAt.Time, true
}
