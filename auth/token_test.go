package auth

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewTokenIssuerShortSecret(t *testing.T) {
	if _, err := NewTokenIssuer("too short", 0); err == nil {
		t.Fatal("expected an error for a short secret")
	}
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	ti, err := NewTokenIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	token, issuedAt, expiresAt, err := ti.Issue(42, []string{ScopeAdmin})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := expiresAt.Sub(issuedAt); got != time.Hour {
		t.Errorf("expected 1h lifetime, got %v", got)
	}

	claims, err := ti.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.UserID != 42 {
		t.Errorf("expected user 42, got %d", claims.UserID)
	}
	if !claims.HasScope(ScopeAdmin) {
		t.Errorf("expected admin scope")
	}
	if claims.HasScope("publish") {
		t.Errorf("unexpected scope")
	}
}

func TestVerifyTampered(t *testing.T) {
	ti, err := NewTokenIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	token, _, _, err := ti.Issue(42, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Flip a character in the signature segment.
	i := strings.LastIndex(token, ".") + 1
	var c byte = 'A'
	if token[i] == 'A' {
		c = 'B'
	}
	tampered := token[:i] + string(c) + token[i+1:]

	if _, err := ti.Verify(tampered); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	a, _ := NewTokenIssuer(testSecret, time.Hour)
	b, _ := NewTokenIssuer("fedcba9876543210fedcba9876543210", time.Hour)

	token, _, _, err := a.Issue(42, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Verify(token); err != ErrTokenInvalid {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	ti, err := NewTokenIssuer(testSecret, time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	token, _, _, err := ti.Issue(42, nil)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(5 * time.Millisecond)

	if _, err := ti.Verify(token); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	ti, _ := NewTokenIssuer(testSecret, time.Hour)

	for _, token := range []string{"", "not a token", "a.b.c"} {
		if _, err := ti.Verify(token); err != ErrTokenInvalid {
			t.Errorf("Verify(%q): expected ErrTokenInvalid, got %v", token, err)
		}
	}
}
