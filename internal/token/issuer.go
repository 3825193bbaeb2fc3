// Package token issues and validates the broker's signed bearer tokens.
//
// Tokens are Ed25519 (EdDSA) JWTs. The mandatory "sid" (session) and "sub"
// (account) claims always win over caller-supplied claims on collision.
package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	ErrExpired      = errors.New("token expired")
	ErrBadSignature = errors.New("token signature invalid")
	ErrMalformed    = errors.New("token malformed")
)

// Claims is the validated content of a broker token.
type Claims struct {
	SessionID string
	AccountID string
	Extra     map[string]string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer signs and validates broker tokens with a single active Ed25519 key.
type Issuer struct {
	iss  string
	kid  string
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// New creates an issuer from a base64url-encoded Ed25519 seed. An empty
// seed generates an ephemeral dev key.
func New(iss, kid, seedB64 string) (*Issuer, error) {
	if iss == "" {
		return nil, fmt.Errorf("issuer required")
	}
	if kid == "" {
		kid = "active"
	}
	if seedB64 == "" {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		return &Issuer{iss: iss, kid: kid, priv: priv, pub: pub}, nil
	}
	seed, err := base64.RawURLEncoding.DecodeString(seedB64)
	if err != nil {
		return nil, fmt.Errorf("decode signing seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Issuer{iss: iss, kid: kid, priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Iss returns the issuer string embedded in every token.
func (i *Issuer) Iss() string { return i.iss }

// Keyfunc returns the verification keyfunc for jwt.Parse.
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) { return i.pub, nil }
}

// SignRaw signs arbitrary claims with the active key. Returns the signed
// token and the kid used. Shared with the correlation state signer.
func (i *Issuer) SignRaw(claims jwtv5.MapClaims) (string, string, error) {
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.kid
	signed, err := tk.SignedString(i.priv)
	return signed, i.kid, err
}

// reserved claims never copied into Extra on validation.
var reserved = map[string]struct{}{
	"iss": {}, "aud": {}, "exp": {}, "iat": {}, "nbf": {}, "sid": {}, "sub": {},
}

// Issue builds a signed bearer token for (sessionID, accountID) expiring at
// expiry. Caller claims are merged; sid/sub are mandatory and win.
func (i *Issuer) Issue(sessionID, accountID string, claims map[string]string, expiry time.Time) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("sessionID required")
	}
	now := time.Now().UTC()
	mc := jwtv5.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["iss"] = i.iss
	mc["iat"] = now.Unix()
	mc["nbf"] = now.Unix()
	mc["exp"] = expiry.Unix()
	mc["sid"] = sessionID
	mc["sub"] = accountID

	signed, _, err := i.SignRaw(mc)
	return signed, err
}

// Validate parses and verifies a broker token, distinguishing expiry from
// signature failures from malformed input.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	tk, err := jwtv5.Parse(tokenString, i.Keyfunc(), jwtv5.WithValidMethods([]string{"EdDSA"}))
	if err != nil {
		switch {
		case errors.Is(err, jwtv5.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwtv5.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, ErrMalformed
		}
	}
	mc, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok || !tk.Valid {
		return nil, ErrMalformed
	}
	if iss, _ := mc["iss"].(string); iss != i.iss {
		return nil, ErrBadSignature
	}

	out := &Claims{Extra: map[string]string{}}
	out.SessionID, _ = mc["sid"].(string)
	out.AccountID, _ = mc["sub"].(string)
	if out.SessionID == "" {
		return nil, ErrMalformed
	}
	if v, ok := mc["iat"].(float64); ok {
		out.IssuedAt = time.Unix(int64(v), 0).UTC()
	}
	if v, ok := mc["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(v), 0).UTC()
	}
	for k, v := range mc {
		if _, skip := reserved[k]; skip {
			continue
		}
		if s, ok := v.(string); ok {
			out.Extra[k] = s
		}
	}
	return out, nil
}
