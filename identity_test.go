package quizforge

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenVerifier(t *testing.T) {
	tv, err := NewTokenVerifier("test-secret")
	if err != nil {
		t.Fatalf("NewTokenVerifier: %v", err)
	}

	token, err := tv.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	id, err := tv.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.Subject != "user-1" || id.Token != token {
		t.Errorf("identity = %+v", id)
	}

	other, _ := NewTokenVerifier("other-secret")
	foreign, _ := other.Issue("user-1", time.Hour)
	expired, _ := tv.Issue("user-1", -time.Hour)

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "user-1",
	}).SignedString([]byte("test-secret"))

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"wrong secret": foreign,
		"expired":      expired,
		"no subject":   noSubject,
		"no expiry":    noExpiry,
		"alg none":     unsigned,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if id, err := tv.Verify(raw); err == nil {
				t.Errorf("Verify accepted token, identity %+v", id)
			}
		})
	}
}

func TestNewTokenVerifierRequiresSecret(t *testing.T) {
	if _, err := NewTokenVerifier(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestIdentityContext(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Error("empty context has an identity")
	}
	if _, ok := IdentityFromContext(WithIdentity(context.Background(), Identity{})); ok {
		t.Error("identity without subject accepted")
	}
	id, ok := IdentityFromContext(WithIdentity(context.Background(), Identity{Subject: "u"}))
	if !ok || id.Subject != "u" {
		t.Errorf("identity = %+v, %v", id, ok)
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
	}
	for header, want := range tests {
		if got := BearerToken(header); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
