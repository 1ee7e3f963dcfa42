package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the payload of hosted-auth access tokens. The user id travels in
// the registered "sub" claim.
type JWTClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// UserID returns the authenticated subject.
func (c *JWTClaims) UserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
