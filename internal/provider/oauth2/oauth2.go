// Package oauth2 implements the authorization-code credential provider for
// plain OAuth 2.0 identity systems (no ID token). The subject is fetched
// from the provider's userinfo endpoint after the code exchange.
package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	xoauth2 "golang.org/x/oauth2"

	"github.com/dropDatabas3/crossjohn/internal/provider"
	tokens "github.com/dropDatabas3/crossjohn/internal/security/token"
)

// Config describes one OAuth2 upstream.
type Config struct {
	Method       string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserinfoURL  string
	LogoutURL    string
	SignupURL    string
	Scopes       []string

	// SubjectField is the userinfo JSON field used as external subject.
	// Default "id".
	SubjectField string

	// HashSubject derives a fixed-size identifier from the subject via a
	// truncated digest instead of using it verbatim.
	HashSubject bool

	// CallbackURL is the default redirect_uri when the caller does not
	// thread one through the params.
	CallbackURL string
}

type Provider struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("oauth2 %q: client_id/client_secret required", cfg.Method)
	}
	if cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, fmt.Errorf("oauth2 %q: auth_url/token_url required", cfg.Method)
	}
	if cfg.UserinfoURL == "" {
		return nil, fmt.Errorf("oauth2 %q: userinfo_url required", cfg.Method)
	}
	if cfg.SubjectField == "" {
		cfg.SubjectField = "id"
	}
	return &Provider{cfg: cfg, http: &http.Client{Timeout: 10 * time.Second}}, nil
}

func (p *Provider) Method() string { return p.cfg.Method }

func (p *Provider) oauthConfig(callback string) *xoauth2.Config {
	if callback == "" {
		callback = p.cfg.CallbackURL
	}
	return &xoauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint:     xoauth2.Endpoint{AuthURL: p.cfg.AuthURL, TokenURL: p.cfg.TokenURL},
		RedirectURL:  callback,
		Scopes:       p.cfg.Scopes,
	}
}

func (p *Provider) GetLoginURL(_ context.Context, correlationState, callbackAddress string) (string, error) {
	return p.oauthConfig(callbackAddress).AuthCodeURL(correlationState), nil
}

func (p *Provider) GetLogoutURL(_ context.Context, correlationState, callbackAddress string) (string, error) {
	if p.cfg.LogoutURL == "" {
		return "", fmt.Errorf("oauth2 %q: no logout endpoint", p.cfg.Method)
	}
	return appendQuery(p.cfg.LogoutURL, correlationState, callbackAddress)
}

func (p *Provider) GetSignupURL(_ context.Context, correlationState, callbackAddress string) (string, error) {
	if p.cfg.SignupURL == "" {
		return "", fmt.Errorf("oauth2 %q: no signup endpoint", p.cfg.Method)
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

// RedeemToken exchanges the authorization code server-to-server and fetches
// the subject from the userinfo endpoint.
func (p *Provider) RedeemToken(ctx context.Context, params provider.Params) provider.Outcome {
	code := params.Get("code")
	if code == "" {
		return provider.InvalidCredentials("missing code parameter")
	}
	state := params.Get("state")

	var tok *xoauth2.Token
	err := provider.RetryTransport(ctx, 3, 200*time.Millisecond, func() (bool, error) {
		var exErr error
		tok, exErr = p.oauthConfig(params.Get("callback")).Exchange(ctx, code)
		if exErr == nil {
			return false, nil
		}
		// A RetrieveError is the endpoint answering non-2xx: a protocol
		// rejection, never retried.
		var re *xoauth2.RetrieveError
		if errors.As(exErr, &re) {
			return false, exErr
		}
		return true, exErr
	})
	if err != nil {
		var re *xoauth2.RetrieveError
		if errors.As(err, &re) {
			return provider.InvalidCredentials(fmt.Sprintf("code rejected: status %d", re.Response.StatusCode))
		}
		return provider.CouldNotConnect(fmt.Sprintf("code exchange: %v", err))
	}
	if tok.AccessToken == "" {
		return provider.CouldNotConnect("code exchange: no access_token in response")
	}

	info, err := p.fetchUserinfo(ctx, tok.AccessToken)
	if err != nil {
		return provider.CouldNotConnect(fmt.Sprintf("userinfo: %v", err))
	}

	subject := stringField(info, p.cfg.SubjectField)
	if subject == "" {
		return provider.Failure(fmt.Sprintf("userinfo missing %q field", p.cfg.SubjectField))
	}
	if p.cfg.HashSubject {
		subject = tokens.TruncatedDigest(subject)
	}

	extra := map[string]string{}
	for _, k := range []string{"email", "name", "login", "picture"} {
		if v := stringField(info, k); v != "" {
			extra[k] = v
		}
	}
	return provider.Success(subject, state, "", extra)
}

// ParseCallbackParameters extracts what it can without network calls: the
// subject lives behind the userinfo endpoint, so only the state survives.
func (p *Provider) ParseCallbackParameters(params provider.Params) (string, string, string) {
	return "", params.Get("state"), ""
}

func (p *Provider) fetchUserinfo(ctx context.Context, accessToken string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserinfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return info, nil
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		// Numeric ids (GitHub-style) flatten to their decimal form.
		return fmt.Sprintf("%.0f", v)
	}
	return ""
}
