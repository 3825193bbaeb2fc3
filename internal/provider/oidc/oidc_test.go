package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/dropDatabas3/crossjohn/internal/provider"
)

// fakeIssuer serves a minimal discovery document pointing back at itself.
func fakeIssuer(t *testing.T) *httptest.Server {
	t.Helper()
	var issuer string
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/auth",
			"token_endpoint":         issuer + "/token",
			"jwks_uri":               issuer + "/keys",
			"end_session_endpoint":   issuer + "/logout",
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []any{}})
	})
	srv := httptest.NewServer(mux)
	issuer = srv.URL
	t.Cleanup(srv.Close)
	return srv
}

func newProvider(t *testing.T, mutate func(*Config)) *Provider {
	t.Helper()
	srv := fakeIssuer(t)
	cfg := Config{
		Method:      "corp-oidc",
		IssuerURL:   srv.URL,
		ClientID:    "client",
		CallbackURL: "https://broker.test/v1/callback/corp-oidc",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_DiscoveryFailure(t *testing.T) {
	// Issuer unreachable: construction fails, redemption never starts.
	_, err := New(context.Background(), Config{
		Method:    "corp-oidc",
		IssuerURL: "http://127.0.0.1:1/nope",
		ClientID:  "client",
	})
	if err == nil {
		t.Fatal("unreachable issuer constructed")
	}
}

func TestNew_RequiredFields(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Config{Method: "m", ClientID: "c"}); err == nil {
		t.Fatal("missing issuer_url accepted")
	}
	if _, err := New(ctx, Config{Method: "m", IssuerURL: "https://x"}); err == nil {
		t.Fatal("missing client_id accepted")
	}
}

func TestRedeemToken_NoProofYet(t *testing.T) {
	p := newProvider(t, nil)

	out := p.RedeemToken(context.Background(), provider.Params{"state": "st-1"})
	if out.Kind != provider.KindUnauthenticated {
		t.Fatalf("outcome: %v (%s)", out.Kind, out.Reason)
	}
	if out.CorrelationState != "st-1" {
		t.Fatalf("state: %q", out.CorrelationState)
	}
}

func TestRedeemToken_GarbageIDToken(t *testing.T) {
	p := newProvider(t, nil)

	out := p.RedeemToken(context.Background(), provider.Params{"id_token": "not.a.jwt"})
	if out.Kind != provider.KindInvalidCredentials {
		t.Fatalf("outcome: %v", out.Kind)
	}
}

func TestGetLoginURL(t *testing.T) {
	p := newProvider(t, nil)

	raw, err := p.GetLoginURL(context.Background(), "st-1", "https://broker.test/cb")
	if err != nil {
		t.Fatalf("GetLoginURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("state") != "st-1" || q.Get("client_id") != "client" {
		t.Fatalf("login url: %q", raw)
	}
	if q.Get("redirect_uri") != "https://broker.test/cb" {
		t.Fatalf("redirect_uri: %q", q.Get("redirect_uri"))
	}
}

func TestGetLogoutURL_FromDiscovery(t *testing.T) {
	p := newProvider(t, nil)

	raw, err := p.GetLogoutURL(context.Background(), "st-1", "https://broker.test/cb")
	if err != nil {
		t.Fatalf("GetLogoutURL: %v", err)
	}
	u, _ := url.Parse(raw)
	if u.Query().Get("state") != "st-1" || u.Query().Get("post_logout_redirect_uri") == "" {
		t.Fatalf("logout url: %q", raw)
	}
}

func TestParseCallbackParameters(t *testing.T) {
	p := newProvider(t, func(c *Config) { c.SubjectClaim = "sub" })

	payload, _ := json.Marshal(map[string]any{"sub": "ext-9", "email": "a@b.c"})
	fakeJWT := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256"}`)) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + ".sig"

	subject, state, known := p.ParseCallbackParameters(provider.Params{"id_token": fakeJWT, "state": "st-1"})
	if subject != "ext-9" || state != "st-1" || known != "" {
		t.Fatalf("parse: %q %q %q", subject, state, known)
	}

	// Malformed tokens degrade to state-only, never panic.
	subject, state, _ = p.ParseCallbackParameters(provider.Params{"id_token": "garbage", "state": "st-2"})
	if subject != "" || state != "st-2" {
		t.Fatalf("parse garbage: %q %q", subject, state)
	}
}
