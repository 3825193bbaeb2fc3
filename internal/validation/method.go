package validation

import "regexp"

// Method name rules:
// - Lowercase only.
// - Start and end with [a-z0-9].
// - Middle chars may include [a-z0-9_.-].
// - Length 1..64.
//
// Examples valid: local, google, corp-oidc, partner_saml.v2
// Examples invalid: BAD, "bad name", -leader, trailer-, "", 65+ chars.
var methodNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9_\.-]{0,62}[a-z0-9])?$`)

// ValidMethodName returns true if the credential method name matches the
// allowed pattern. Method names appear in URLs and metric labels, so the
// charset is deliberately tight.
func ValidMethodName(name string) bool {
	return methodNameRe.MatchString(name)
}
