package jwttoken

import (
	"time"

	authmw "assetregistry/pkg/platform/middleware/auth"
)

// Validator exposes a JWTService to the auth middleware, which only sees the
// claims it needs and never imports the jwt library.
type Validator struct {
	tokens *JWTService
}

func NewValidator(tokens *JWTService) Validator {
	return Validator{tokens: tokens}
}

func (v Validator) ValidateToken(raw string) (*authmw.JWTClaims, error) {
	claims, err := v.tokens.ValidateToken(raw)
	if err != nil {
		return nil, err
	}
	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return &authmw.JWTClaims{
		Subject:   claims.Subject,
		JTI:       claims.ID,
		ExpiresAt: expires,
	}, nil
}
