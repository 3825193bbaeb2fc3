// Package resttoken implements the credential provider for proprietary
// identity systems that expose a plain REST token-introspection endpoint:
// the broker forwards the presented token and reads back a JSON document
// describing its owner.
package resttoken

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dropDatabas3/crossjohn/internal/provider"
	tokens "github.com/dropDatabas3/crossjohn/internal/security/token"
)

// Config describes one REST introspection upstream.
type Config struct {
	Method string

	// VerifyURL is the introspection endpoint. The token is appended as the
	// TokenParam query parameter.
	VerifyURL string
	// TokenParam defaults to "token".
	TokenParam string

	// Service credentials presented to the endpoint. When Username is set
	// basic auth is used; otherwise BearerToken, when set.
	Username    string
	Password    string
	BearerToken string

	// SubjectField is the response JSON field used as external subject.
	// Default "id".
	SubjectField string
	HashSubject  bool

	LoginURL  string
	LogoutURL string
	SignupURL string
}

type Provider struct {
	cfg  Config
	http *http.Client
}

// New validates nothing beyond the method name on purpose: an incomplete
// configuration surfaces per-attempt as the unspecified-configuration
// outcome so one broken method never blocks registry construction of the
// rest.
func New(cfg Config) (*Provider, error) {
	if cfg.TokenParam == "" {
		cfg.TokenParam = "token"
	}
	if cfg.SubjectField == "" {
		cfg.SubjectField = "id"
	}
	return &Provider{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}}, nil
}

func (p *Provider) Method() string { return p.cfg.Method }

func (p *Provider) GetLoginURL(_ context.Context, correlationState, callbackAddress string) (string, error) {
	if p.cfg.LoginURL == "" {
		return "", fmt.Errorf("resttoken %q: no login endpoint", p.cfg.Method)
	}
	return appendQuery(p.cfg.LoginURL, correlationState, callbackAddress)
}

func (p *Provider) GetLogoutURL(_ context.Context, correlationState, callbackAddress string) (string, error) {
	if p.cfg.LogoutURL == "" {
		return "", fmt.Errorf("resttoken %q: no logout endpoint", p.cfg.Method)
	}
	return appendQuery(p.cfg.LogoutURL, correlationState, callbackAddress)
}

func (p *Provider) GetSignupURL(_ context.Context, correlationState, callbackAddress string) (string, error) {
	if p.cfg.SignupURL == "" {
		return "", fmt.Errorf("resttoken %q: no signup endpoint", p.cfg.Method)
	}
	return appendQuery(p.cfg.SignupURL, correlationState, callbackAddress)
}

func appendQuery(base, state, callback string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("state", state)
	if callback != "" {
		q.Set("redirect_uri", callback)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RedeemToken introspects the presented token.
//
// Outcome mapping: absent endpoint or credentials is the operator's fault
// (unspecified configuration); a 401/403 from the endpoint rejects the
// token (invalid credentials); other non-2xx statuses are protocol
// failures; transport errors are retried and then reported as
// could-not-connect.
func (p *Provider) RedeemToken(ctx context.Context, params provider.Params) provider.Outcome {
	if p.cfg.VerifyURL == "" {
		return provider.UnspecifiedConfiguration(fmt.Sprintf("resttoken %q: verify_url not configured", p.cfg.Method))
	}
	if p.cfg.Username == "" && p.cfg.BearerToken == "" {
		return provider.UnspecifiedConfiguration(fmt.Sprintf("resttoken %q: no service credentials configured", p.cfg.Method))
	}

	tok := params.Get("token")
	if tok == "" {
		return provider.InvalidCredentials("missing token parameter")
	}
	state := params.Get("state")

	var (
		status int
		body   map[string]any
	)
	err := provider.RetryTransport(ctx, 3, 200*time.Millisecond, func() (bool, error) {
		var doErr error
		status, body, doErr = p.introspect(ctx, tok)
		// Any HTTP status is an answer from the endpoint; only failing to
		// get one is retriable.
		return doErr != nil, doErr
	})
	if err != nil {
		return provider.CouldNotConnect(fmt.Sprintf("introspection: %v", err))
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return provider.InvalidCredentials(fmt.Sprintf("token rejected (status %d)", status))
	case status < 200 || status > 299:
		return provider.Failure(fmt.Sprintf("introspection status %d", status))
	}

	subject := stringField(body, p.cfg.SubjectField)
	if subject == "" {
		return provider.Failure(fmt.Sprintf("introspection response missing %q field", p.cfg.SubjectField))
	}
	if p.cfg.HashSubject {
		subject = tokens.TruncatedDigest(subject)
	}

	extra := map[string]string{}
	for _, k := range []string{"email", "name", "username", "scope"} {
		if v := stringField(body, k); v != "" {
			extra[k] = v
		}
	}
	return provider.Success(subject, state, "", extra)
}

// ParseCallbackParameters cannot recover the subject without calling the
// endpoint, so only the state survives.
func (p *Provider) ParseCallbackParameters(params provider.Params) (string, string, string) {
	return "", params.Get("state"), ""
}

func (p *Provider) introspect(ctx context.Context, token string) (int, map[string]any, error) {
	u, err := url.Parse(p.cfg.VerifyURL)
	if err != nil {
		return 0, nil, err
	}
	q := u.Query()
	q.Set(p.cfg.TokenParam, token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if p.cfg.Username != "" {
		req.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	} else {
		req.Header.Set("Authorization", "Bearer "+p.cfg.BearerToken)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var body map[string]any
	// Some endpoints answer errors with non-JSON bodies; tolerate that.
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}
