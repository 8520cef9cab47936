package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the payload of an mdconv bearer token.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}
