// Package provider defines the internal contract between the broker and the
// external credential providers (OAuth2, OIDC, SAML, REST token, local).
//
// Every protocol is translated into a canonical Outcome; the rest of the
// broker never sees protocol details, only the outcome variant.
package provider

import "context"

// Params are the flattened callback parameters (query/form values).
// Well-known keys: "code", "id_token", "SAMLResponse", "token", "state",
// "username", "secret".
type Params map[string]string

// Get returns the value for a key, or "" when absent.
func (p Params) Get(key string) string {
	if p == nil {
		return ""
	}
	return p[key]
}

// Provider is the minimal capability: naming the method it serves.
// All other capabilities are optional interfaces; the broker type-asserts
// and treats an absent capability as "operation not supported for this
// method", not as an error.
type Provider interface {
	Method() string
}

// LoginURLBuilder builds the provider-specific authorization URL embedding
// the correlation state. Must be idempotent for the same inputs, except for
// protocol-mandated nonces.
type LoginURLBuilder interface {
	GetLoginURL(ctx context.Context, correlationState, callbackAddress string) (string, error)
}

// LogoutURLBuilder builds the external logout URL, when the provider
// exposes one.
type LogoutURLBuilder interface {
	GetLogoutURL(ctx context.Context, correlationState, callbackAddress string) (string, error)
}

// SignupURLBuilder builds the provider signup URL.
type SignupURLBuilder interface {
	GetSignupURL(ctx context.Context, correlationState, callbackAddress string) (string, error)
}

// TokenRedeemer is the core protocol step: exchanging external proof
// (code, token, assertion) for a verified subject identity.
//
// Contract: every expected protocol failure (bad code, bad signature,
// unreachable IdP, absent configuration) is reported as an Outcome variant,
// never as a panic. Only programming errors propagate.
type TokenRedeemer interface {
	RedeemToken(ctx context.Context, params Params) Outcome
}

// CallbackParser extracts (subject, state, known account id) from the
// parameters without side effects or network validation. Must agree with
// what RedeemToken would extract.
type CallbackParser interface {
	ParseCallbackParameters(params Params) (subject, correlationState, knownAccountID string)
}
