package gateway

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// tokenExpired reports whether the bearer token's exp claim has passed.
// The signature is not verified here; the server remains the authority,
// this only avoids sending requests that are guaranteed to be rejected.
func tokenExpired(token string, now time.Time) (bool, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if exp == nil {
		return false, nil
	}
	return exp.Before(now), nil
}
