package oauth2

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/dropDatabas3/crossjohn/internal/provider"
)

// fakeIdP is a minimal authorization-code upstream: a token endpoint and a
// userinfo endpoint.
func fakeIdP(t *testing.T, userinfo map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(userinfo)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newProvider(t *testing.T, srv *httptest.Server, mutate func(*Config)) *Provider {
	t.Helper()
	cfg := Config{
		Method:       "acme",
		ClientID:     "client",
		ClientSecret: "secret",
		AuthURL:      srv.URL + "/auth",
		TokenURL:     srv.URL + "/token",
		UserinfoURL:  srv.URL + "/userinfo",
		CallbackURL:  "https://broker.test/v1/callback/acme",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestNew_RequiredFields(t *testing.T) {
	if _, err := New(Config{Method: "m"}); err == nil {
		t.Fatal("empty config accepted")
	}
	if _, err := New(Config{Method: "m", ClientID: "c", ClientSecret: "s", AuthURL: "a", TokenURL: "t"}); err == nil {
		t.Fatal("missing userinfo_url accepted")
	}
}

func TestRedeemToken_Success(t *testing.T) {
	srv := fakeIdP(t, map[string]any{"id": "ext-7", "email": "a@b.c", "name": "Alice"})
	p := newProvider(t, srv, nil)

	out := p.RedeemToken(context.Background(), provider.Params{"code": "good-code", "state": "st-1"})
	if out.Kind != provider.KindSuccess {
		t.Fatalf("outcome: %+v", out)
	}
	if out.Subject != "ext-7" || out.CorrelationState != "st-1" {
		t.Fatalf("outcome fields: %+v", out)
	}
	if out.ExtraParams["name"] != "Alice" {
		t.Fatalf("extra: %+v", out.ExtraParams)
	}
}

func TestRedeemToken_BadCode(t *testing.T) {
	srv := fakeIdP(t, map[string]any{"id": "ext-7"})
	p := newProvider(t, srv, nil)

	out := p.RedeemToken(context.Background(), provider.Params{"code": "stolen"})
	if out.Kind != provider.KindInvalidCredentials {
		t.Fatalf("outcome: %v (%s)", out.Kind, out.Reason)
	}
}

func TestRedeemToken_MissingCode(t *testing.T) {
	srv := fakeIdP(t, map[string]any{"id": "ext-7"})
	p := newProvider(t, srv, nil)

	out := p.RedeemToken(context.Background(), provider.Params{"state": "st-1"})
	if out.Kind != provider.KindInvalidCredentials {
		t.Fatalf("outcome: %v", out.Kind)
	}
}

func TestRedeemToken_SubjectFieldMissing(t *testing.T) {
	srv := fakeIdP(t, map[string]any{"email": "a@b.c"})
	p := newProvider(t, srv, nil)

	out := p.RedeemToken(context.Background(), provider.Params{"code": "good-code"})
	if out.Kind != provider.KindFailure {
		t.Fatalf("outcome: %v (%s)", out.Kind, out.Reason)
	}
}

func TestRedeemToken_HashSubject(t *testing.T) {
	srv := fakeIdP(t, map[string]any{"id": "ext-7"})
	p := newProvider(t, srv, func(c *Config) { c.HashSubject = true })

	out := p.RedeemToken(context.Background(), provider.Params{"code": "good-code"})
	if out.Kind != provider.KindSuccess {
		t.Fatalf("outcome: %+v", out)
	}
	if out.Subject == "ext-7" || len(out.Subject) != 32 {
		t.Fatalf("subject not digested: %q", out.Subject)
	}

	// Deterministic: the same external subject yields the same identifier.
	again := p.RedeemToken(context.Background(), provider.Params{"code": "good-code"})
	if again.Subject != out.Subject {
		t.Fatalf("digest unstable: %q vs %q", again.Subject, out.Subject)
	}
}

func TestGetLoginURL_CarriesState(t *testing.T) {
	srv := fakeIdP(t, nil)
	p := newProvider(t, srv, nil)
	ctx := context.Background()

	u1, err := p.GetLoginURL(ctx, "state-one", "https://broker.test/cb")
	if err != nil {
		t.Fatalf("GetLoginURL: %v", err)
	}
	u2, err := p.GetLoginURL(ctx, "state-two", "https://broker.test/cb")
	if err != nil {
		t.Fatalf("GetLoginURL: %v", err)
	}

	p1, _ := url.Parse(u1)
	p2, _ := url.Parse(u2)
	if p1.Query().Get("state") != "state-one" || p2.Query().Get("state") != "state-two" {
		t.Fatalf("states: %q %q", u1, u2)
	}

	// Everything but the state is identical across calls.
	q1, q2 := p1.Query(), p2.Query()
	q1.Del("state")
	q2.Del("state")
	if q1.Encode() != q2.Encode() || p1.Path != p2.Path {
		t.Fatalf("urls differ beyond state:\n%q\n%q", u1, u2)
	}
}

func TestGetLogoutURL(t *testing.T) {
	srv := fakeIdP(t, nil)
	p := newProvider(t, srv, func(c *Config) { c.LogoutURL = srv.URL + "/logout" })

	u, err := p.GetLogoutURL(context.Background(), "st-1", "https://broker.test/cb")
	if err != nil {
		t.Fatalf("GetLogoutURL: %v", err)
	}
	if !strings.Contains(u, "state=st-1") {
		t.Fatalf("logout url: %q", u)
	}

	bare := newProvider(t, srv, nil)
	if _, err := bare.GetLogoutURL(context.Background(), "st-1", ""); err == nil {
		t.Fatal("logout without endpoint accepted")
	}
}
