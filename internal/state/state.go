package state

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Sentinel errors returned by Verify.
var (
	ErrInvalidState  = errors.New("state is invalid")
	ErrExpiredState  = errors.New("state is expired")
	ErrStateMismatch = errors.New("state does not match request")
)

const (
	// DefaultTTL is how long an issued state stays valid.
	DefaultTTL = 10 * time.Minute

	// randomStateBytes is the entropy of an unsigned state value.
	randomStateBytes = 32

	signingMethod = "HS256"
)

// stateClaims is the claims type carried by a signed state.
type stateClaims struct {
	jwt.RegisteredClaims
	Provider    string `json:"prv"`
	RedirectURI string `json:"ruri"`
}

// Claims describes a verified state token.
type Claims struct {
	ID          string
	Provider    string
	RedirectURI string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Signer issues and verifies HMAC-signed state tokens.
// A Signer is immutable and safe for concurrent use.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSigner creates a signer. A non-positive ttl selects DefaultTTL.
func NewSigner(key []byte, ttl time.Duration) (*Signer, error) {
	if len(key) == 0 {
		return nil, errors.New("state signing key is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Signer{key: k, ttl: ttl, now: time.Now}, nil
}

// WithClock returns a copy of the signer that reads time from now.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	cp := *s
	if now != nil {
		cp.now = now
	}
	return &cp
}

// TTL returns the lifetime of issued tokens.
func (s *Signer) TTL() time.Duration {
	return s.ttl
}

// Issue returns a signed state bound to provider and redirectURI.
func (s *Signer) Issue(provider, redirectURI string) (string, error) {
	now := s.now().UTC()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Provider:    provider,
		RedirectURI: redirectURI,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return signed, nil
}

// Verify checks the signature, algorithm and expiry of token and that it was
// issued for provider and redirectURI.
func (s *Signer) Verify(token, provider, redirectURI string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, fmt.Errorf("%w: state is required", ErrInvalidState)
	}

	var parsed stateClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{signingMethod}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.ID == "" {
		return Claims{}, fmt.Errorf("%w: jti is required", ErrInvalidState)
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: exp is required", ErrInvalidState)
	}

	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(s.now().UTC()) {
		return Claims{}, ErrExpiredState
	}
	if parsed.Provider != provider {
		return Claims{}, fmt.Errorf("%w: provider", ErrStateMismatch)
	}
	if parsed.RedirectURI != redirectURI {
		return Claims{}, fmt.Errorf("%w: redirect_uri", ErrStateMismatch)
	}

	claims := Claims{
		ID:          parsed.ID,
		Provider:    parsed.Provider,
		RedirectURI: parsed.RedirectURI,
		ExpiresAt:   exp,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// mapJWTError translates jwt library errors to state errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: signature is invalid", ErrInvalidState)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: alg is invalid", ErrInvalidState)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: malformed", ErrInvalidState)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
}

// Random returns an unsigned, URL-safe random state value.
func Random() (string, error) {
	b := make([]byte, randomStateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
