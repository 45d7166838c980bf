package auth

import "github.com/golang-jwt/jwt/v5"

// AccessTokenClaims identifies the storefront user a cart request acts for.
type AccessTokenClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
