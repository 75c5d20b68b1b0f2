package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the JWT payload for access tokens. Roles are never carried in
// the token; they are resolved from the role registry per operation.
type JWTClaims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// TokenResponse returns an issued access token.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}
