// Package oidc implements the OpenID Connect credential provider. The
// discovery document and signing keys are fetched once at construction
// (the registry guarantees single-flight) and reused for every validation.
package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	xoauth2 "golang.org/x/oauth2"

	"github.com/dropDatabas3/crossjohn/internal/provider"
	tokens "github.com/dropDatabas3/crossjohn/internal/security/token"
)

// Config describes one OIDC upstream.
type Config struct {
	Method       string
	IssuerURL    string
	ClientID     string
	ClientSecret string
	Scopes       []string

	// SubjectClaim is the ID-token claim used as external subject.
	// Default "sub".
	SubjectClaim string
	HashSubject  bool

	LogoutURL   string
	CallbackURL string
}

type Provider struct {
	cfg      Config
	rp       *gooidc.Provider
	verifier *gooidc.IDTokenVerifier
}

// New performs the one-time discovery fetch. A failure here is a
// construction error (misconfiguration or unreachable issuer), reported
// distinctly from redemption failures by the registry.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("oidc %q: issuer_url required", cfg.Method)
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("oidc %q: client_id required", cfg.Method)
	}
	if cfg.SubjectClaim == "" {
		cfg.SubjectClaim = "sub"
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}

	rp, err := gooidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc %q: discovery: %w", cfg.Method, err)
	}
	verifier := rp.Verifier(&gooidc.Config{ClientID: cfg.ClientID})
	return &Provider{cfg: cfg, rp: rp, verifier: verifier}, nil
}

func (p *Provider) Method() string { return p.cfg.Method }

func (p *Provider) oauthConfig(callback string) *xoauth2.Config {
	if callback == "" {
		callback = p.cfg.CallbackURL
	}
	return &xoauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint:     p.rp.Endpoint(),
		RedirectURL:  callback,
		Scopes:       p.cfg.Scopes,
	}
}

func (p *Provider) GetLoginURL(_ context.Context, correlationState, callbackAddress string) (string, error) {
	return p.oauthConfig(callbackAddress).AuthCodeURL(correlationState), nil
}

func (p *Provider) GetLogoutURL(_ context.Context, correlationState, callbackAddress string) (string, error) {
	endpoint := p.cfg.LogoutURL
	if endpoint == "" {
		// RP-initiated logout from discovery, when the issuer publishes it.
		var extra struct {
			EndSessionEndpoint string `json:"end_session_endpoint"`
		}
		if err := p.rp.Claims(&extra); err == nil {
			endpoint = extra.EndSessionEndpoint
		}
	}
	if endpoint == "" {
		return "", fmt.Errorf("oidc %q: no end_session_endpoint", p.cfg.Method)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("state", correlationState)
	if callbackAddress != "" {
		q.Set("post_logout_redirect_uri", callbackAddress)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RedeemToken validates an ID token against the cached signing keys. When
// only a code is present it is exchanged first; when neither is present the
// outcome is Unauthenticated: the identity proof has not arrived yet and
// the caller may re-enter the callback with it.
func (p *Provider) RedeemToken(ctx context.Context, params provider.Params) provider.Outcome {
	state := params.Get("state")
	rawIDToken := params.Get("id_token")

	if rawIDToken == "" {
		code := params.Get("code")
		if code == "" {
			return provider.Unauthenticated(state, nil)
		}
		tok, err := p.oauthConfig(params.Get("callback")).Exchange(ctx, code)
		if err != nil {
			var re *xoauth2.RetrieveError
			if errors.As(err, &re) {
				return provider.InvalidCredentials(fmt.Sprintf("code rejected: %v", err))
			}
			return provider.CouldNotConnect(fmt.Sprintf("code exchange: %v", err))
		}
		extracted, ok := tok.Extra("id_token").(string)
		if !ok || extracted == "" {
			return provider.Unauthenticated(state, nil)
		}
		rawIDToken = extracted
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		// Signature, issuer, audience and expiry failures all mean the
		// presented proof is not acceptable.
		return provider.InvalidCredentials(fmt.Sprintf("id_token validation: %v", err))
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return provider.Failure(fmt.Sprintf("parse claims: %v", err))
	}

	subject, _ := claims[p.cfg.SubjectClaim].(string)
	if subject == "" && p.cfg.SubjectClaim == "sub" {
		subject = idToken.Subject
	}
	if subject == "" {
		return provider.Failure(fmt.Sprintf("id_token missing %q claim", p.cfg.SubjectClaim))
	}
	if p.cfg.HashSubject {
		subject = tokens.TruncatedDigest(subject)
	}

	extra := map[string]string{}
	for _, k := range []string{"email", "name", "given_name", "family_name", "picture", "locale"} {
		if v, ok := claims[k].(string); ok && v != "" {
			extra[k] = v
		}
	}
	return provider.Success(subject, state, "", extra)
}

// ParseCallbackParameters extracts the subject claim from the raw ID token
// without verifying the signature, mirroring what RedeemToken would return.
func (p *Provider) ParseCallbackParameters(params provider.Params) (string, string, string) {
	state := params.Get("state")
	raw := params.Get("id_token")
	if raw == "" {
		return "", state, ""
	}
	subject := unverifiedClaim(raw, p.cfg.SubjectClaim)
	if p.cfg.HashSubject && subject != "" {
		subject = tokens.TruncatedDigest(subject)
	}
	return subject, state, ""
}

// unverifiedClaim decodes the JWT payload without validation and returns a
// string claim. Only for the trusted-parameters preview path.
func unverifiedClaim(raw, claim string) string {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return ""
	}
	s, _ := m[claim].(string)
	return s
}
