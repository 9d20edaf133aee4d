// Package auth authenticates callers using the HS256 session tokens issued by the
// site's identity provider.
package auth

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/PortNumber53/landing-api/internal/models"
)

// ErrInvalidToken is returned for any token that fails parsing, signature or expiry checks.
var ErrInvalidToken = errors.New("auth: invalid session token")

// Claims is the payload of a session token. Subject carries the numeric user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Verify checks the token's signature and expiry and returns the caller it names.
func Verify(secret []byte, token string) (models.Caller, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return models.Caller{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return models.Caller{}, fmt.Errorf("%w: subject %q is not a user id", ErrInvalidToken, claims.Subject)
	}

	return models.Caller{ID: id, Email: claims.Email, Name: claims.Name}, nil
}
