// Package auth issues and verifies the bearer tokens accepted by the CRM.
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	core "github.com/crmkit/crm_services/internal/core_domain"
)

const (
	Issuer        = "crm"
	Audience      = "crm_client"
	TokenDuration = 7 * 24 * time.Hour
)

var (
	ErrMissingToken  = errors.New("missing token")
	ErrInvalidFormat = errors.New("invalid token format")
	ErrInvalidToken  = errors.New("invalid token")
)

// Claims carries the caller identity next to the registered claims.
type Claims struct {
	core.Identity
	jwt.RegisteredClaims
}

// Signer mints tokens with an Ed25519 private key.
type Signer struct {
	key ed25519.PrivateKey
	now func() time.Time
}

func NewSigner(key ed25519.PrivateKey) *Signer {
	return &Signer{key: key, now: time.Now}
}

// LoadSigner reads a PKCS#8 PEM private key.
func LoadSigner(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	key, err := jwt.ParseEdPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	edKey, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want ed25519", key)
	}
	return NewSigner(edKey), nil
}

func (s *Signer) Sign(id core.Identity) (string, error) {
	now := s.now()
	claims := Claims{
		Identity: id,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenDuration)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.key)
}

// Verifier checks tokens with an Ed25519 public key.
type Verifier struct {
	key ed25519.PublicKey
	now func() time.Time
}

func NewVerifier(key ed25519.PublicKey) *Verifier {
	return &Verifier{key: key, now: time.Now}
}

// LoadVerifier reads a PKIX PEM public key.
func LoadVerifier(path string) (*Verifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	key, err := jwt.ParseEdPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	edKey, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want ed25519", key)
	}
	return NewVerifier(edKey), nil
}

// Verify returns the identity carried by a valid token.
func (v *Verifier) Verify(token string) (core.Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return core.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Identity, nil
}

// VerifyHeader verifies an "Authorization: Bearer <token>" value.
func (v *Verifier) VerifyHeader(header string) (core.Identity, error) {
	if header == "" {
		return core.Identity{}, ErrMissingToken
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return core.Identity{}, ErrInvalidFormat
	}
	return v.Verify(token)
}
