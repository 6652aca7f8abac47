package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewJWTVerifier([]byte("planhub-test-secret"))

	token, err := v.Generate("agent-planner", time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	sub, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sub != "agent-planner" {
		t.Fatalf("subject = %q, want agent-planner", sub)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	v := NewJWTVerifier([]byte("planhub-test-secret"))

	other := NewJWTVerifier([]byte("some-other-secret"))
	foreign, err := other.Generate("agent-planner", time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-jwt"},
		{name: "malformed", token: "header.payload.signature"},
		{name: "wrong secret", token: foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("want ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewJWTVerifier([]byte("planhub-test-secret"))

	token, err := v.Generate("agent-planner", -time.Minute)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := v.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("want ErrExpiredToken, got %v", err)
	}
}

func TestVerifyRequiresExpiry(t *testing.T) {
	secret := []byte("planhub-test-secret")
	v := NewJWTVerifier(secret)

	// Correctly signed but with no exp claim; agent credentials must
	// always expire.
	eternal, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "agent-planner",
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Verify(eternal); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	secret := []byte("planhub-test-secret")
	v := NewJWTVerifier(secret)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "agent-planner",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Verify(hs512); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRequiresSubject(t *testing.T) {
	v := NewJWTVerifier([]byte("planhub-test-secret"))

	token, err := v.Generate("", time.Hour)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := v.Verify(token); !errors.Is(err, ErrMissingClaim) {
		t.Fatalf("want ErrMissingClaim, got %v", err)
	}
}
