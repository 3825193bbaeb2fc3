package util

import "strings"

// MaskEmail reduce un subject externo a una forma loggeable: los subjects
// federados suelen ser emails y no van enteros al log. Conserva apenas la
// primera letra de cada parte ("alice@example.com" -> "a…@e….com");
// entradas que no parecen email se truncan igual.
func MaskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	at := strings.IndexByte(s, '@')
	if at <= 0 {
		switch {
		case s == "":
			return ""
		case len(s) <= 3:
			return "***"
		default:
			return s[:1] + "…" + s[len(s)-1:]
		}
	}
	return maskLabel(s[:at]) + "@" + maskDomain(s[at+1:])
}

func maskLabel(p string) string {
	if len(p) <= 1 {
		return p
	}
	return p[:1] + "…"
}

func maskDomain(d string) string {
	labels := strings.Split(d, ".")
	labels[0] = maskLabel(labels[0])
	return strings.Join(labels, ".")
}
