// Package identity resolves the optional authenticated user for a telemetry
// session. Resolution happens once at session start; failures are reported to
// the caller, which treats the session as anonymous.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoIdentity reports that no authenticated user is present. Callers treat
// it as "anonymous session", not as a failure.
var ErrNoIdentity = errors.New("identity: no authenticated user")

// Resolver yields the user id to attribute a session to.
type Resolver interface {
	ResolveUserID(ctx context.Context) (string, error)
}

// StaticResolver always answers with a fixed user id.
type StaticResolver struct {
	UserID string
}

var _ Resolver = (*StaticResolver)(nil)

func (r *StaticResolver) ResolveUserID(ctx context.Context) (string, error) {
	if r.UserID == "" {
		return "", ErrNoIdentity
	}
	return r.UserID, nil
}

// TokenSupplier fetches the current session token, typically from a cookie
// jar, local credential cache, or auth service. Returning an empty token
// without error means no user is signed in.
type TokenSupplier func(ctx context.Context) (string, error)

// JWTResolver extracts the user id from an HS256-signed session token.
type JWTResolver struct {
	secret   []byte
	supplier TokenSupplier
}

var _ Resolver = (*JWTResolver)(nil)

// NewJWTResolver creates a resolver verifying tokens against secret.
func NewJWTResolver(secret []byte, supplier TokenSupplier) *JWTResolver {
	return &JWTResolver{
		secret:   secret,
		supplier: supplier,
	}
}

func (r *JWTResolver) ResolveUserID(ctx context.Context) (string, error) {
	tokenString, err := r.supplier(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch session token: %w", err)
	}
	if tokenString == "" {
		return "", ErrNoIdentity
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse session token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid session token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("session token missing subject")
	}

	return sub, nil
}
