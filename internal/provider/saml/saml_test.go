package saml

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"net/url"
	"testing"
	"time"

	"github.com/dropDatabas3/crossjohn/internal/provider"
)

func selfSignedCertPEM(t *testing.T) string {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa: %v", err)
	}
	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "idp.test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func newProvider(t *testing.T, mutate func(*Config)) *Provider {
	t.Helper()
	cfg := Config{
		Method:         "partner-saml",
		IdPSSOURL:      "https://idp.test/sso",
		IdPIssuer:      "https://idp.test",
		SPIssuer:       "https://broker.test",
		CertificatePEM: selfSignedCertPEM(t),
		CallbackURL:    "https://broker.test/v1/callback/partner-saml",
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

func TestNew_CertificateRequired(t *testing.T) {
	base := Config{
		Method: "m", IdPSSOURL: "https://idp.test/sso", IdPIssuer: "https://idp.test", SPIssuer: "https://sp.test",
	}
	if _, err := New(base); err == nil {
		t.Fatal("missing certificate accepted")
	}

	bad := base
	bad.CertificatePEM = "not a certificate"
	if _, err := New(bad); err == nil {
		t.Fatal("non-PEM certificate accepted")
	}
}

func TestGetLoginURL_RelayStateCarriesCorrelation(t *testing.T) {
	p := newProvider(t, nil)

	raw, err := p.GetLoginURL(context.Background(), "st-1", "")
	if err != nil {
		t.Fatalf("GetLoginURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "idp.test" {
		t.Fatalf("host: %q", u.Host)
	}
	if u.Query().Get("RelayState") != "st-1" {
		t.Fatalf("relay state: %q", raw)
	}
	if u.Query().Get("SAMLRequest") == "" {
		t.Fatal("no AuthnRequest in url")
	}
}

func TestGetLogoutURL(t *testing.T) {
	p := newProvider(t, func(c *Config) { c.LogoutURL = "https://idp.test/slo" })

	raw, err := p.GetLogoutURL(context.Background(), "st-1", "")
	if err != nil {
		t.Fatalf("GetLogoutURL: %v", err)
	}
	u, _ := url.Parse(raw)
	if u.Query().Get("RelayState") != "st-1" {
		t.Fatalf("logout url: %q", raw)
	}

	bare := newProvider(t, nil)
	if _, err := bare.GetLogoutURL(context.Background(), "st-1", ""); err == nil {
		t.Fatal("logout without slo endpoint accepted")
	}
}

func TestRedeemToken_InvalidAssertions(t *testing.T) {
	p := newProvider(t, nil)
	ctx := context.Background()

	// Missing response.
	if out := p.RedeemToken(ctx, provider.Params{}); out.Kind != provider.KindInvalidCredentials {
		t.Fatalf("missing response: %v", out.Kind)
	}
	// Garbage base64.
	if out := p.RedeemToken(ctx, provider.Params{"SAMLResponse": "!!!"}); out.Kind != provider.KindInvalidCredentials {
		t.Fatalf("garbage: %v", out.Kind)
	}
	// Well-formed XML without a signature fails validation.
	unsigned := base64.StdEncoding.EncodeToString([]byte(
		`<Response xmlns="urn:oasis:names:tc:SAML:2.0:protocol"><Assertion></Assertion></Response>`))
	if out := p.RedeemToken(ctx, provider.Params{"SAMLResponse": unsigned}); out.Kind != provider.KindInvalidCredentials {
		t.Fatalf("unsigned: %v", out.Kind)
	}
}

const sampleResponse = `<Response>
  <Assertion>
    <Subject><NameID>alice@idp.test</NameID></Subject>
    <AttributeStatement>
      <Attribute Name="uid"><AttributeValue>u-77</AttributeValue></Attribute>
      <Attribute Name="mail"><AttributeValue>alice@idp.test</AttributeValue></Attribute>
    </AttributeStatement>
  </Assertion>
</Response>`

func TestParseCallbackParameters_NameID(t *testing.T) {
	p := newProvider(t, nil)
	raw := base64.StdEncoding.EncodeToString([]byte(sampleResponse))

	subject, state, known := p.ParseCallbackParameters(provider.Params{
		"SAMLResponse": raw,
		"RelayState":   "st-1",
	})
	if subject != "alice@idp.test" || state != "st-1" || known != "" {
		t.Fatalf("parse: %q %q %q", subject, state, known)
	}
}

func TestParseCallbackParameters_SubjectAttribute(t *testing.T) {
	p := newProvider(t, func(c *Config) { c.SubjectAttribute = "uid" })
	raw := base64.StdEncoding.EncodeToString([]byte(sampleResponse))

	subject, _, _ := p.ParseCallbackParameters(provider.Params{"SAMLResponse": raw})
	if subject != "u-77" {
		t.Fatalf("subject: %q", subject)
	}
}

func TestParseCallbackParameters_Degrades(t *testing.T) {
	p := newProvider(t, nil)

	// state fallback and tolerance of absent/garbage payloads
	subject, state, _ := p.ParseCallbackParameters(provider.Params{"state": "st-2"})
	if subject != "" || state != "st-2" {
		t.Fatalf("parse empty: %q %q", subject, state)
	}
	subject, _, _ = p.ParseCallbackParameters(provider.Params{"SAMLResponse": "!!!"})
	if subject != "" {
		t.Fatalf("parse garbage: %q", subject)
	}
}
