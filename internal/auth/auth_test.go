package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	cfg := &TokenConfig{Secret: []byte("s3cret"), Expiration: time.Hour}

	tok, err := GenerateToken("demo", cfg)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	got, err := ParseToken(tok, cfg)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if got.Producer != "demo" || got.ExpiresAt <= got.IssuedAt {
		t.Errorf("token = %+v", got)
	}
}

func TestParseTokenRejects(t *testing.T) {
	cfg := &TokenConfig{Secret: []byte("s3cret"), Expiration: time.Hour}
	good, err := GenerateToken("demo", cfg)
	if err != nil {
		t.Fatal(err)
	}
	payload, _, _ := strings.Cut(good, ".")

	forged := base64.RawURLEncoding.EncodeToString([]byte("admin|9999999999|0"))
	expired, err := GenerateToken("demo", &TokenConfig{Secret: cfg.Secret, Expiration: -time.Minute})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		token string
		cfg   *TokenConfig
		want  error
	}{
		{"no dot", "abc", cfg, ErrInvalidToken},
		{"bad base64", "!!.!!", cfg, ErrInvalidToken},
		{"forged payload", forged + "." + strings.SplitN(good, ".", 2)[1], cfg, ErrInvalidToken},
		{"wrong secret", good, &TokenConfig{Secret: []byte("other")}, ErrInvalidToken},
		{"truncated signature", payload + ".AAAA", cfg, ErrInvalidToken},
		{"expired", expired, cfg, ErrExpiredToken},
		{"missing secret", good, &TokenConfig{}, ErrMissingSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token, tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	if _, err := GenerateToken("demo", &TokenConfig{}); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("missing secret: %v", err)
	}
	if _, err := GenerateToken("a|b", &TokenConfig{Secret: []byte("x")}); err == nil {
		t.Error("producer with separator accepted")
	}
}

func TestGenerateSecureKey(t *testing.T) {
	k, err := GenerateSecureKey(0)
	if err != nil || len(k) != 32 {
		t.Fatalf("key len = %d, err = %v", len(k), err)
	}
}
