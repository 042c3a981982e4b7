package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/swaralabs/swara/internal/config"
)

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AuthConfig
		want string
	}{
		{
			name: "disabled when nothing configured",
			cfg:  config.AuthConfig{},
			want: "disabled",
		},
		{
			name: "static when only shared token configured",
			cfg:  config.AuthConfig{StaticToken: "sekrit", TokenTTL: time.Hour},
			want: "static",
		},
		{
			name: "jwt when secret configured",
			cfg:  config.AuthConfig{JWTSecret: "signing-secret", TokenTTL: time.Hour},
			want: "jwt",
		},
		{
			name: "jwt wins over static",
			cfg:  config.AuthConfig{StaticToken: "sekrit", JWTSecret: "signing-secret", TokenTTL: time.Hour},
			want: "jwt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := FromConfig(tt.cfg)
			var got string
			switch a.(type) {
			case DisabledAuthenticator:
				got = "disabled"
			case *StaticAuthenticator:
				got = "static"
			case *JWTAuthenticator:
				got = "jwt"
			default:
				t.Fatalf("Unexpected authenticator type %T", a)
			}
			if got != tt.want {
				t.Errorf("Expected %s authenticator, got %s", tt.want, got)
			}
		})
	}
}

func TestDisabledAuthenticator(t *testing.T) {
	a := DisabledAuthenticator{}

	if a.Enabled() {
		t.Error("Disabled authenticator should report not enabled")
	}
	if err := a.Verify("anything"); err != nil {
		t.Errorf("Disabled authenticator should accept any token, got %v", err)
	}
	if err := a.Verify(""); err != nil {
		t.Errorf("Disabled authenticator should accept missing token, got %v", err)
	}
}

func TestStaticAuthenticator(t *testing.T) {
	a := NewStaticAuthenticator("sekrit", time.Hour)

	if !a.Enabled() {
		t.Error("Static authenticator should report enabled")
	}

	token, expiresAt, err := a.Issue()
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if token != "sekrit" {
		t.Errorf("Expected issued token to be the shared secret, got %q", token)
	}
	if time.Until(expiresAt) <= 0 {
		t.Error("Expected expiry in the future")
	}

	if err := a.Verify("sekrit"); err != nil {
		t.Errorf("Expected matching token to verify, got %v", err)
	}

	for _, bad := range []string{"", "wrong", "sekrit "} {
		if err := a.Verify(bad); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q) = %v, expected ErrInvalidToken", bad, err)
		}
	}
}

func TestJWTAuthenticator(t *testing.T) {
	a := NewJWTAuthenticator("signing-secret", time.Hour)

	token, expiresAt, err := a.Issue()
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if token == "" {
		t.Fatal("Expected a signed token")
	}
	if time.Until(expiresAt) <= 0 {
		t.Error("Expected expiry in the future")
	}

	if err := a.Verify(token); err != nil {
		t.Errorf("Expected issued token to verify, got %v", err)
	}

	if err := a.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for garbage, got %v", err)
	}

	other := NewJWTAuthenticator("different-secret", time.Hour)
	if err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken across secrets, got %v", err)
	}
}

func TestJWTAuthenticatorExpiry(t *testing.T) {
	a := NewJWTAuthenticator("signing-secret", -time.Minute)

	token, _, err := a.Issue()
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if err := a.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected expired token to fail verification, got %v", err)
	}
}
