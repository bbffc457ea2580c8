// Package credential produces the signed check-in credential attached to a
// registration, and retries attachment for registrations left without one.
package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Shivanand-hulikatti/race-registration/internal/ports"
)

type credentialClaims struct {
	RegistrationID string `json:"rid"`
	EventID        string `json:"eid"`
	UserID         string `json:"uid"`
	jwt.RegisteredClaims
}

// JWTGenerator signs credentials with HS256. The claims carry no issue
// time, so the same registration always yields the same token.
type JWTGenerator struct {
	key    []byte
	issuer string
}

// NewJWTGenerator builds a generator from a shared signing key.
func NewJWTGenerator(signingKey, issuer string) (*JWTGenerator, error) {
	if len(signingKey) < 32 {
		return nil, errors.New("credential signing key must be at least 32 bytes")
	}
	return &JWTGenerator{key: []byte(signingKey), issuer: issuer}, nil
}

// Generate signs the registration identity into a compact token.
func (g *JWTGenerator) Generate(_ context.Context, p ports.CredentialPayload) (string, error) {
	if p.RegistrationID == "" {
		return "", errors.New("credential payload needs a registration id")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, credentialClaims{
		RegistrationID: p.RegistrationID,
		EventID:        p.EventID,
		UserID:         p.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  g.issuer,
			Subject: p.RegistrationID,
		},
	})
	signed, err := token.SignedString(g.key)
	if err != nil {
		return "", fmt.Errorf("sign credential: %w", err)
	}
	return signed, nil
}

// Verify checks a scanned credential and returns what it proves.
func (g *JWTGenerator) Verify(raw string) (ports.CredentialPayload, error) {
	var claims credentialClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return g.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(g.issuer),
	)
	if err != nil {
		return ports.CredentialPayload{}, fmt.Errorf("verify credential: %w", err)
	}
	return ports.CredentialPayload{
		RegistrationID: claims.RegistrationID,
		EventID:        claims.EventID,
		UserID:         claims.UserID,
	}, nil
}
