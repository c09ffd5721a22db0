package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func roundTripState(t *testing.T, codec *StateCodec, state FlowState) *http.Request {
	t.Helper()

	rec := httptest.NewRecorder()
	if err := codec.Set(rec, state); err != nil {
		t.Fatalf("unexpected error sealing state: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/oidc/github/callback", nil)
	for _, cookie := range rec.Result().Cookies() {
		r.AddCookie(cookie)
	}
	return r
}

func TestStateRoundTrip(t *testing.T) {
	codec := NewStateCodec(testSecret)

	sealed := FlowState{
		Provider: "github",
		State:    "state-nonce",
		Nonce:    "id-token-nonce",
		Verifier: "pkce-verifier",
	}
	r := roundTripState(t, codec, sealed)

	state, err := codec.Get(r, "state-nonce")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *state != sealed {
		t.Errorf("state changed across the round trip: %+v", state)
	}
}

func TestStateMismatch(t *testing.T) {
	codec := NewStateCodec(testSecret)

	r := roundTripState(t, codec, FlowState{Provider: "github", State: "expected"})

	if _, err := codec.Get(r, "attacker-supplied"); err != ErrStateInvalid {
		t.Fatalf("expected ErrStateInvalid, got %v", err)
	}
	if _, err := codec.Get(r, ""); err != ErrStateInvalid {
		t.Fatalf("expected ErrStateInvalid for empty echo, got %v", err)
	}
}

func TestStateMissingCookie(t *testing.T) {
	codec := NewStateCodec(testSecret)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/auth/oidc/github/callback", nil)
	if _, err := codec.Get(r, "whatever"); err != ErrStateInvalid {
		t.Fatalf("expected ErrStateInvalid, got %v", err)
	}
}

func TestStateForgedCookie(t *testing.T) {
	codec := NewStateCodec(testSecret)
	other := NewStateCodec("fedcba9876543210fedcba9876543210")

	// A cookie sealed under a different secret must not decode.
	r := roundTripState(t, other, FlowState{Provider: "github", State: "s"})
	if _, err := codec.Get(r, "s"); err != ErrStateInvalid {
		t.Fatalf("expected ErrStateInvalid, got %v", err)
	}
}

func TestRandomNonceUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		n := RandomNonce()
		if n == "" {
			t.Fatal("empty nonce")
		}
		if seen[n] {
			t.Fatalf("nonce repeated: %s", n)
		}
		seen[n] = true
	}
}
