package provider

import "fmt"

// OutcomeKind tags the result of a redemption attempt. Exactly one of the
// six variants applies to any attempt.
type OutcomeKind int

const (
	// KindSuccess: the proof was verified and a subject identity extracted.
	KindSuccess OutcomeKind = iota
	// KindUnauthenticated: expected mid-flow state, the identity proof has
	// not arrived yet (e.g. implicit grant pending). Non-terminal: the
	// caller may retry with the missing parameter.
	KindUnauthenticated
	// KindInvalidCredentials: the presented proof is wrong or malformed.
	// User-facing, never retried.
	KindInvalidCredentials
	// KindCouldNotConnect: transient transport failure reaching the
	// external identity system. Retriable with backoff.
	KindCouldNotConnect
	// KindUnspecifiedConfiguration: server operator error (missing client
	// secret, certificate, endpoint). Fatal for the method until fixed.
	KindUnspecifiedConfiguration
	// KindFailure: the protocol completed but the result is unusable
	// (e.g. configured subject claim absent).
	KindFailure
)

// String returns the kind name, also used as a metric label.
func (k OutcomeKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindCouldNotConnect:
		return "could_not_connect"
	case KindUnspecifiedConfiguration:
		return "unspecified_configuration"
	case KindFailure:
		return "failure"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome is the tagged result of a credential redemption. Produced by a
// provider, consumed immediately by the session manager; never persisted.
type Outcome struct {
	Kind OutcomeKind

	// Subject is the external subject identifier (success only).
	Subject string
	// CorrelationState echoes the state threaded through the redirect
	// round trip (success and unauthenticated).
	CorrelationState string
	// KnownAccountID is set when the provider already resolved the
	// internal account (local methods).
	KnownAccountID string
	// ExtraParams carries provider claims to merge into the session.
	ExtraParams map[string]string

	// Reason describes the failure for the non-success variants.
	Reason string
}

func Success(subject, correlationState, knownAccountID string, extra map[string]string) Outcome {
	return Outcome{
		Kind:             KindSuccess,
		Subject:          subject,
		CorrelationState: correlationState,
		KnownAccountID:   knownAccountID,
		ExtraParams:      extra,
	}
}

func Unauthenticated(correlationState string, extra map[string]string) Outcome {
	return Outcome{Kind: KindUnauthenticated, CorrelationState: correlationState, ExtraParams: extra}
}

func InvalidCredentials(reason string) Outcome {
	return Outcome{Kind: KindInvalidCredentials, Reason: reason}
}

func CouldNotConnect(reason string) Outcome {
	return Outcome{Kind: KindCouldNotConnect, Reason: reason}
}

func UnspecifiedConfiguration(reason string) Outcome {
	return Outcome{Kind: KindUnspecifiedConfiguration, Reason: reason}
}

func Failure(reason string) Outcome {
	return Outcome{Kind: KindFailure, Reason: reason}
}

// Succeeded reports whether the outcome is the success variant.
func (o Outcome) Succeeded() bool { return o.Kind == KindSuccess }
