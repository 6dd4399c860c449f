// Package auth mints and checks player bearer tokens and reports ownership
// violations.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ForbiddenError indicates a player acting on something it does not own.
type ForbiddenError struct {
	Kind string
	ID   string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s %s belongs to another player", e.Kind, e.ID)
}

// Require returns a ForbiddenError unless owner is playerID.
func Require(kind, id, owner, playerID string) error {
	if owner != playerID {
		return ForbiddenError{Kind: kind, ID: id}
	}
	return nil
}

// Claims carry the player id in the subject.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// Tokens signs and verifies HS256 player tokens.
type Tokens struct {
	Secret string
	TTL    time.Duration
	Now    func() time.Time
}

func (t Tokens) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t Tokens) Issue(playerID, name string) (string, error) {
	if strings.TrimSpace(t.Secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if playerID == "" {
		return "", errors.New("player id required")
	}
	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  playerID,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   "stardock",
		},
		Name: name,
	}
	if t.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(t.TTL))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.Secret))
}

// Parse validates token and returns the player id it was issued for.
func (t Tokens) Parse(token string) (string, error) {
	if strings.TrimSpace(t.Secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(t.Secret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("subject claim required")
	}
	return claims.Subject, nil
}
