package app

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/crossjohn/internal/config"
	"github.com/dropDatabas3/crossjohn/internal/identity"
	"github.com/dropDatabas3/crossjohn/internal/provider"
	"github.com/dropDatabas3/crossjohn/internal/provider/local"
	"github.com/dropDatabas3/crossjohn/internal/provider/oauth2"
	"github.com/dropDatabas3/crossjohn/internal/provider/oidc"
	"github.com/dropDatabas3/crossjohn/internal/provider/registry"
	"github.com/dropDatabas3/crossjohn/internal/provider/resttoken"
	"github.com/dropDatabas3/crossjohn/internal/provider/saml"
	"github.com/dropDatabas3/crossjohn/internal/token"
)

// providerFactories traduce la tabla de configuración en la tabla de
// constructores del registry. La construcción real (discovery OIDC, parseo
// de certificados) queda diferida al primer uso de cada método.
func providerFactories(cfg *config.Config, mapper *identity.Mapper, issuer *token.Issuer) map[string]registry.Factory {
	factories := make(map[string]registry.Factory, len(cfg.Providers)+1)

	for name, pc := range cfg.Providers {
		name, pc := name, pc
		switch pc.Kind {
		case "oauth2":
			factories[name] = func(ctx context.Context) (provider.Provider, error) {
				return oauth2.New(oauth2.Config{
					Method:       name,
					ClientID:     pc.ClientID,
					ClientSecret: pc.ClientSecret,
					AuthURL:      pc.AuthURL,
					TokenURL:     pc.TokenURL,
					UserinfoURL:  pc.UserinfoURL,
					LogoutURL:    pc.LogoutURL,
					SignupURL:    pc.SignupURL,
					Scopes:       pc.Scopes,
					SubjectField: pc.SubjectField,
					HashSubject:  pc.HashSubject,
					CallbackURL:  pc.CallbackURL,
				})
			}
		case "oidc":
			factories[name] = func(ctx context.Context) (provider.Provider, error) {
				return oidc.New(ctx, oidc.Config{
					Method:       name,
					IssuerURL:    pc.IssuerURL,
					ClientID:     pc.ClientID,
					ClientSecret: pc.ClientSecret,
					Scopes:       pc.Scopes,
					SubjectClaim: pc.SubjectClaim,
					HashSubject:  pc.HashSubject,
					LogoutURL:    pc.LogoutURL,
					CallbackURL:  pc.CallbackURL,
				})
			}
		case "saml":
			factories[name] = func(ctx context.Context) (provider.Provider, error) {
				return saml.New(saml.Config{
					Method:           name,
					IdPSSOURL:        pc.IdPSSOURL,
					IdPIssuer:        pc.IdPIssuer,
					SPIssuer:         pc.SPIssuer,
					AudienceURI:      pc.AudienceURI,
					CertificatePEM:   pc.CertificatePEM,
					NameIDFormat:     pc.NameIDFormat,
					SubjectAttribute: pc.SubjectAttribute,
					HashSubject:      pc.HashSubject,
					LogoutURL:        pc.LogoutURL,
					CallbackURL:      pc.CallbackURL,
				})
			}
		case "resttoken":
			factories[name] = func(ctx context.Context) (provider.Provider, error) {
				return resttoken.New(resttoken.Config{
					Method:       name,
					VerifyURL:    pc.VerifyURL,
					TokenParam:   pc.TokenParam,
					Username:     pc.Username,
					Password:     pc.Password,
					BearerToken:  pc.BearerToken,
					SubjectField: pc.SubjectField,
					HashSubject:  pc.HashSubject,
					LoginURL:     pc.LoginURL,
					LogoutURL:    pc.LogoutURL,
					SignupURL:    pc.SignupURL,
				})
			}
		case "local":
			factories[name] = func(ctx context.Context) (provider.Provider, error) {
				return local.New(local.Config{Method: name}, mapper, issuer), nil
			}
		default:
			factories[name] = func(ctx context.Context) (provider.Provider, error) {
				return nil, fmt.Errorf("unknown provider kind %q", pc.Kind)
			}
		}
	}

	// El método local existe siempre, configurado o no.
	if _, ok := factories["local"]; !ok {
		factories["local"] = func(ctx context.Context) (provider.Provider, error) {
			return local.New(local.Config{Method: "local"}, mapper, issuer), nil
		}
	}
	return factories
}
