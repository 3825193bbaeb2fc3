// Package local implements the built-in credential provider: username plus
// secret verified against the broker's own credential mappings, or a broker
// token presented back for re-authentication. It is the only provider that
// resolves the internal account itself, so its outcomes carry
// KnownAccountID.
package local

import (
	"context"

	"github.com/dropDatabas3/crossjohn/internal/provider"
	"github.com/dropDatabas3/crossjohn/internal/security/password"
	"github.com/dropDatabas3/crossjohn/internal/token"
)

// CredentialSource resolves a local username to its account and stored
// secret hash. found=false means the username is unknown; err reports the
// backing store failing, not absence.
type CredentialSource interface {
	LookupLocalCredential(ctx context.Context, method, username string) (accountID, secretPHC string, found bool, err error)
}

// TokenValidator validates broker-issued bearer tokens.
type TokenValidator interface {
	Validate(tokenString string) (*token.Claims, error)
}

type Config struct {
	// Method defaults to "local".
	Method string
}

type Provider struct {
	cfg    Config
	creds  CredentialSource
	tokens TokenValidator
}

func New(cfg Config, creds CredentialSource, tokens TokenValidator) *Provider {
	if cfg.Method == "" {
		cfg.Method = "local"
	}
	return &Provider{cfg: cfg, creds: creds, tokens: tokens}
}

func (p *Provider) Method() string { return p.cfg.Method }

// RedeemToken accepts either (username, secret) or a previously issued
// broker token. Unknown username and wrong secret collapse into the same
// outcome.
func (p *Provider) RedeemToken(ctx context.Context, params provider.Params) provider.Outcome {
	state := params.Get("state")

	if t := params.Get("token"); t != "" {
		return p.redeemOwnToken(t, state)
	}

	username := params.Get("username")
	secret := params.Get("secret")
	if username == "" || secret == "" {
		return provider.InvalidCredentials("missing username or secret")
	}

	accountID, phc, found, err := p.creds.LookupLocalCredential(ctx, p.cfg.Method, username)
	if err != nil {
		return provider.CouldNotConnect("credential lookup: " + err.Error())
	}
	if !found || !password.Verify(secret, phc) {
		return provider.InvalidCredentials("unknown username or wrong secret")
	}
	return provider.Success(username, state, accountID, nil)
}

func (p *Provider) redeemOwnToken(raw, state string) provider.Outcome {
	claims, err := p.tokens.Validate(raw)
	if err != nil {
		// Expired, forged and malformed tokens all fail the same way for
		// the caller.
		return provider.InvalidCredentials("token validation: " + err.Error())
	}
	subject := claims.Extra["username"]
	if subject == "" {
		subject = claims.AccountID
	}
	return provider.Success(subject, state, claims.AccountID, claims.Extra)
}

// ParseCallbackParameters previews the username (or token subject) without
// touching the store.
func (p *Provider) ParseCallbackParameters(params provider.Params) (string, string, string) {
	state := params.Get("state")
	if u := params.Get("username"); u != "" {
		return u, state, ""
	}
	if t := params.Get("token"); t != "" {
		if claims, err := p.tokens.Validate(t); err == nil {
			subject := claims.Extra["username"]
			if subject == "" {
				subject = claims.AccountID
			}
			return subject, state, claims.AccountID
		}
	}
	return "", state, ""
}
