package service

import "github.com/golang-jwt/jwt/v5"

// SignedKey should be loaded from env in production
var SignedKey = []byte("shipsync-super-secret-key-2026")

// UserClaims is the token shape issued by the upstream auth service; the
// sync subsystem only verifies it.
type UserClaims struct {
	UserID   string `json:"uid"`
	Username string `json:"sub"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}
