package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/swaralabs/swara/internal/config"
)

// ErrInvalidToken is returned when a presented token fails verification.
// Transport code maps it to the unauthorized close code.
var ErrInvalidToken = errors.New("invalid token")

// Authenticator issues tokens to clients and verifies the token presented
// when a voice stream connects
type Authenticator interface {
	// Enabled reports whether connections must present a token
	Enabled() bool
	// Issue mints a token for the discovery endpoint
	Issue() (token string, expiresAt time.Time, err error)
	// Verify checks a presented token
	Verify(token string) error
}

// FromConfig selects the authenticator mode: signed tokens when a JWT
// secret is configured, shared-secret comparison when only a static token
// is configured, otherwise open access
func FromConfig(cfg config.AuthConfig) Authenticator {
	if cfg.JWTSecret != "" {
		return NewJWTAuthenticator(cfg.JWTSecret, cfg.TokenTTL)
	}
	if cfg.StaticToken != "" {
		return NewStaticAuthenticator(cfg.StaticToken, cfg.TokenTTL)
	}
	return DisabledAuthenticator{}
}

// DisabledAuthenticator accepts every connection
type DisabledAuthenticator struct{}

func (DisabledAuthenticator) Enabled() bool { return false }

func (DisabledAuthenticator) Issue() (string, time.Time, error) {
	return "", time.Time{}, nil
}

func (DisabledAuthenticator) Verify(string) error { return nil }

// StaticAuthenticator compares tokens against one shared secret
type StaticAuthenticator struct {
	token string
	ttl   time.Duration
}

var _ Authenticator = (*StaticAuthenticator)(nil)

// NewStaticAuthenticator creates a shared-secret authenticator
func NewStaticAuthenticator(token string, ttl time.Duration) *StaticAuthenticator {
	return &StaticAuthenticator{token: token, ttl: ttl}
}

func (a *StaticAuthenticator) Enabled() bool { return true }

func (a *StaticAuthenticator) Issue() (string, time.Time, error) {
	return a.token, time.Now().Add(a.ttl), nil
}

func (a *StaticAuthenticator) Verify(token string) error {
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// StreamClaims are the claims carried by issued stream tokens
type StreamClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

const streamScope = "voice-stream"

// JWTAuthenticator issues and verifies signed HS256 tokens
type JWTAuthenticator struct {
	secret []byte
	ttl    time.Duration
}

var _ Authenticator = (*JWTAuthenticator)(nil)

// NewJWTAuthenticator creates a signed-token authenticator
func NewJWTAuthenticator(secret string, ttl time.Duration) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), ttl: ttl}
}

func (a *JWTAuthenticator) Enabled() bool { return true }

func (a *JWTAuthenticator) Issue() (string, time.Time, error) {
	expiresAt := time.Now().Add(a.ttl)
	claims := &StreamClaims{
		Scope: streamScope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (a *JWTAuthenticator) Verify(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &StreamClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*StreamClaims)
	if !ok || !token.Valid {
		return ErrInvalidToken
	}
	if claims.Scope != streamScope {
		return fmt.Errorf("%w: wrong scope %q", ErrInvalidToken, claims.Scope)
	}

	return nil
}
