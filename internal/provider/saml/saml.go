// Package saml implements the SAML 2.0 credential provider. Assertions are
// validated against the IdP certificate configured for the method; the
// external subject comes from a configurable attribute with NameID as
// fallback.
package saml

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/url"

	"github.com/beevik/etree"
	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/dropDatabas3/crossjohn/internal/provider"
	tokens "github.com/dropDatabas3/crossjohn/internal/security/token"
)

// Config describes one SAML IdP.
type Config struct {
	Method string

	// IdPSSOURL is the IdP single-sign-on endpoint the AuthnRequest is
	// sent to.
	IdPSSOURL string
	// IdPIssuer is the IdP entityID expected in assertions.
	IdPIssuer string
	// SPIssuer is our own entityID.
	SPIssuer string
	// AudienceURI restricts which assertions we accept. Defaults to
	// SPIssuer.
	AudienceURI string
	// CertificatePEM is the IdP signing certificate. Mandatory: without it
	// no assertion can be validated.
	CertificatePEM string

	NameIDFormat string

	// SubjectAttribute selects the assertion attribute used as external
	// subject. Empty means NameID.
	SubjectAttribute string
	HashSubject      bool

	LogoutURL   string
	CallbackURL string
}

type Provider struct {
	cfg       Config
	certStore *dsig.MemoryX509CertificateStore
}

// New parses the IdP certificate once. A missing or unparseable certificate
// is a construction error: the method cannot validate anything without it.
func New(cfg Config) (*Provider, error) {
	if cfg.IdPSSOURL == "" || cfg.IdPIssuer == "" {
		return nil, fmt.Errorf("saml %q: idp_sso_url/idp_issuer required", cfg.Method)
	}
	if cfg.SPIssuer == "" {
		return nil, fmt.Errorf("saml %q: sp_issuer required", cfg.Method)
	}
	if cfg.CertificatePEM == "" {
		return nil, fmt.Errorf("saml %q: idp certificate required", cfg.Method)
	}
	if cfg.AudienceURI == "" {
		cfg.AudienceURI = cfg.SPIssuer
	}

	block, _ := pem.Decode([]byte(cfg.CertificatePEM))
	if block == nil {
		return nil, fmt.Errorf("saml %q: idp certificate is not PEM", cfg.Method)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("saml %q: parse idp certificate: %w", cfg.Method, err)
	}

	return &Provider{
		cfg:       cfg,
		certStore: &dsig.MemoryX509CertificateStore{Roots: []*x509.Certificate{cert}},
	}, nil
}

func (p *Provider) Method() string { return p.cfg.Method }

func (p *Provider) serviceProvider(callback string) *saml2.SAMLServiceProvider {
	if callback == "" {
		callback = p.cfg.CallbackURL
	}
	return &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      p.cfg.IdPSSOURL,
		IdentityProviderIssuer:      p.cfg.IdPIssuer,
		ServiceProviderIssuer:       p.cfg.SPIssuer,
		AssertionConsumerServiceURL: callback,
		AudienceURI:                 p.cfg.AudienceURI,
		IDPCertificateStore:         p.certStore,
		NameIdFormat:                p.cfg.NameIDFormat,
	}
}

// GetLoginURL builds the redirect-binding AuthnRequest URL. The correlation
// state travels as RelayState.
func (p *Provider) GetLoginURL(_ context.Context, correlationState, callbackAddress string) (string, error) {
	u, err := p.serviceProvider(callbackAddress).BuildAuthURL(correlationState)
	if err != nil {
		return "", fmt.Errorf("saml %q: build auth url: %w", p.cfg.Method, err)
	}
	return u, nil
}

func (p *Provider) GetLogoutURL(_ context.Context, correlationState, callbackAddress string) (string, error) {
	if p.cfg.LogoutURL == "" {
		return "", fmt.Errorf("saml %q: no slo endpoint", p.cfg.Method)
	}
	u, err := url.Parse(p.cfg.LogoutURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("RelayState", correlationState)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RedeemToken validates the posted assertion: signature against the IdP
// certificate, time window and audience. Any validation failure is
// InvalidCredentials; there is no external call to fail transiently.
func (p *Provider) RedeemToken(_ context.Context, params provider.Params) provider.Outcome {
	raw := params.Get("SAMLResponse")
	if raw == "" {
		return provider.InvalidCredentials("missing SAMLResponse")
	}
	state := params.Get("RelayState")
	if state == "" {
		state = params.Get("state")
	}

	info, err := p.serviceProvider(params.Get("callback")).RetrieveAssertionInfo(raw)
	if err != nil {
		return provider.InvalidCredentials(fmt.Sprintf("assertion validation: %v", err))
	}
	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return provider.InvalidCredentials("assertion outside validity window")
		}
		if info.WarningInfo.NotInAudience {
			return provider.InvalidCredentials("assertion audience mismatch")
		}
	}

	subject, extra := p.extract(info)
	if subject == "" {
		return provider.Failure("assertion carries no usable subject")
	}
	if p.cfg.HashSubject {
		subject = tokens.TruncatedDigest(subject)
	}
	return provider.Success(subject, state, "", extra)
}

func (p *Provider) extract(info *saml2.AssertionInfo) (string, map[string]string) {
	extra := map[string]string{}
	subject := ""
	for name, attr := range info.Values {
		if len(attr.Values) == 0 {
			continue
		}
		v := attr.Values[0].Value
		extra[name] = v
		if p.cfg.SubjectAttribute != "" && name == p.cfg.SubjectAttribute {
			subject = v
		}
	}
	if subject == "" && p.cfg.SubjectAttribute == "" {
		subject = info.NameID
	}
	return subject, extra
}

// ParseCallbackParameters reads NameID (or the configured attribute) out of
// the raw response without checking the signature. Preview only; the
// assertion still goes through RedeemToken before any session mutation.
func (p *Provider) ParseCallbackParameters(params provider.Params) (string, string, string) {
	state := params.Get("RelayState")
	if state == "" {
		state = params.Get("state")
	}
	raw := params.Get("SAMLResponse")
	if raw == "" {
		return "", state, ""
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", state, ""
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(decoded); err != nil {
		return "", state, ""
	}

	subject := ""
	if p.cfg.SubjectAttribute != "" {
		for _, attr := range doc.FindElements("//Attribute") {
			if attr.SelectAttrValue("Name", "") != p.cfg.SubjectAttribute {
				continue
			}
			if v := attr.FindElement("AttributeValue"); v != nil {
				subject = v.Text()
			}
			break
		}
	} else if el := doc.FindElement("//NameID"); el != nil {
		subject = el.Text()
	}
	if p.cfg.HashSubject && subject != "" {
		subject = tokens.TruncatedDigest(subject)
	}
	return subject, state, ""
}
