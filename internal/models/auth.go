package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the access-token payload issued by the upstream identity
// service; this API only validates it.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
