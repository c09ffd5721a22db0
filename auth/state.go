package auth

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// flowCookie is the name of the short-lived cookie carrying the delegated
// identity flow state between the login redirect and the callback.
const flowCookie = "zpkg_auth_flow"

// FlowState is what the login endpoint stashes for its callback: the state
// nonce echoed by the provider, the OIDC nonce bound into the ID token and
// the PKCE code verifier.
type FlowState struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
	Nonce    string `json:"nonce"`
	Verifier string `json:"verifier"`
}

// StateCodec signs and seals flow state into a browser cookie, so the
// registry stays stateless across the provider round-trip.
type StateCodec struct {
	codec *securecookie.SecureCookie
}

// NewStateCodec derives the cookie keys from the server secret.
func NewStateCodec(secret string) *StateCodec {
	// securecookie wants distinct hash and block keys; carve both out of
	// the configured secret deterministically.
	hashKey := []byte(secret)
	blockKey := []byte(secret)[:32]

	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int((10 * time.Minute).Seconds()))

	return &StateCodec{codec: sc}
}

// Set seals state into the flow cookie on w.
func (s *StateCodec) Set(w http.ResponseWriter, state FlowState) error {
	encoded, err := s.codec.Encode(flowCookie, state)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     flowCookie,
		Value:    encoded,
		Path:     "/api/v1/auth/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

// Get unseals the flow cookie from r and verifies the echoed state nonce.
func (s *StateCodec) Get(r *http.Request, echoedState string) (*FlowState, error) {
	cookie, err := r.Cookie(flowCookie)
	if err != nil {
		return nil, ErrStateInvalid
	}

	var state FlowState
	if err := s.codec.Decode(flowCookie, cookie.Value, &state); err != nil {
		return nil, ErrStateInvalid
	}

	if echoedState == "" || state.State != echoedState {
		return nil, ErrStateInvalid
	}

	return &state, nil
}

// Clear expires the flow cookie.
func (s *StateCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     flowCookie,
		Value:    "",
		Path:     "/api/v1/auth/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// RandomNonce returns a fresh URL-safe random string.
func RandomNonce() string {
	buf := make([]byte, 24)
	rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}
