// Package correlation issues and validates the signed state threaded through
// every provider redirect round trip. The state is an Ed25519 JWT: the
// broker can verify on return that it minted the value, for which method and
// purpose, without storing anything but a single-use nonce.
package correlation

import (
	"context"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/crossjohn/internal/cache"
)

// Audience marks correlation state tokens, keeping them unusable as session
// bearer tokens even though both are signed with the broker key.
const Audience = "login-state"

// Purposes a state can be minted for.
const (
	PurposeLogin  = "login"
	PurposeLogout = "logout"
	PurposeSignup = "signup"
)

var (
	ErrStateInvalid  = errors.New("correlation: invalid state token")
	ErrStateExpired  = errors.New("correlation: state expired")
	ErrStateReplayed = errors.New("correlation: state already consumed")
	ErrStateMismatch = errors.New("correlation: state method/purpose mismatch")
)

// State is the validated content of a correlation token.
type State struct {
	Method   string
	Purpose  string
	Callback string
	Nonce    string
}

// Signer mints and validates correlation states. Each state embeds a nonce
// registered in the cache at issue time and consumed exactly once, so a
// replayed redirect fails even when the signature is fine. Validation and
// consumption are separate steps: a callback peeks first, and the nonce is
// taken only once the provider outcome is terminal, keeping a pending
// (unauthenticated) round trip re-enterable with the same state.
type Signer struct {
	Issuer interface {
		SignRaw(claims jwtv5.MapClaims) (string, string, error)
		Keyfunc() jwtv5.Keyfunc
		Iss() string
	}
	Nonces cache.Cache
	TTL    time.Duration
}

func (s *Signer) ttl() time.Duration {
	if s.TTL <= 0 {
		return 10 * time.Minute
	}
	return s.TTL
}

// Issue mints a state for (purpose, method), valid for one round trip.
func (s *Signer) Issue(_ context.Context, purpose, method, callback string) (string, error) {
	nonce := uuid.NewString()
	now := time.Now().UTC()
	claims := jwtv5.MapClaims{
		"iss":     s.Issuer.Iss(),
		"aud":     Audience,
		"iat":     now.Unix(),
		"nbf":     now.Unix(),
		"exp":     now.Add(s.ttl()).Unix(),
		"purpose": purpose,
		"method":  method,
		"nonce":   nonce,
	}
	if callback != "" {
		claims["callback"] = callback
	}

	signed, _, err := s.Issuer.SignRaw(claims)
	if err != nil {
		return "", err
	}
	s.Nonces.Set(nonceKey(nonce), []byte(method), s.ttl())
	return signed, nil
}

// Peek checks signature, audience, expiry, the expected method and purpose,
// and that the nonce is still live, WITHOUT consuming it. It must be called
// before any session mutation: a state that fails here means the callback is
// not a round trip the broker started. The caller owes a Consume once the
// outcome is terminal.
func (s *Signer) Peek(_ context.Context, tokenString, expectMethod, expectPurpose string) (*State, error) {
	st, err := s.parse(tokenString, expectMethod, expectPurpose)
	if err != nil {
		return nil, err
	}
	if _, live := s.Nonces.Get(nonceKey(st.Nonce)); !live {
		return nil, ErrStateReplayed
	}
	return st, nil
}

// Consume takes the single-use nonce. Exactly one of N concurrent consumers
// of the same state wins; the rest get ErrStateReplayed. Runs between a
// terminal provider outcome and the session write, so a double-submitted
// callback can never mint two sessions from one state.
func (s *Signer) Consume(_ context.Context, tokenString string) (*State, error) {
	st, err := s.parse(tokenString, "", "")
	if err != nil {
		return nil, err
	}
	if _, taken := s.Nonces.TakeOnce(nonceKey(st.Nonce)); !taken {
		return nil, ErrStateReplayed
	}
	return st, nil
}

func (s *Signer) parse(tokenString, expectMethod, expectPurpose string) (*State, error) {
	if tokenString == "" {
		return nil, ErrStateInvalid
	}
	tk, err := jwtv5.Parse(tokenString, s.Issuer.Keyfunc(), jwtv5.WithValidMethods([]string{"EdDSA"}))
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrStateExpired
		}
		return nil, ErrStateInvalid
	}
	mc, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok || !tk.Valid {
		return nil, ErrStateInvalid
	}
	if iss, _ := mc["iss"].(string); iss != s.Issuer.Iss() {
		return nil, ErrStateInvalid
	}
	if aud, _ := mc["aud"].(string); aud != Audience {
		return nil, ErrStateInvalid
	}

	st := &State{
		Method:   getString(mc, "method"),
		Purpose:  getString(mc, "purpose"),
		Callback: getString(mc, "callback"),
		Nonce:    getString(mc, "nonce"),
	}
	if st.Nonce == "" {
		return nil, ErrStateInvalid
	}
	if expectMethod != "" && st.Method != expectMethod {
		return nil, ErrStateMismatch
	}
	if expectPurpose != "" && st.Purpose != expectPurpose {
		return nil, ErrStateMismatch
	}
	return st, nil
}

func nonceKey(nonce string) string { return "state-nonce:" + nonce }

func getString(m jwtv5.MapClaims, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
