// Package session orchestrates the broker: provider redemption, identity
// resolution and token issuance composed into session lifecycle operations.
//
// The central invariant is at-most-once authentication: a session's
// accountId is set exactly once, enforced by a compare-and-swap on the
// session record, never overwritten even under concurrent callback
// delivery.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/crossjohn/internal/provider"
)

var (
	ErrAlreadyExists        = errors.New("session: already exists")
	ErrNotFound             = errors.New("session: not found")
	ErrAlreadyAuthenticated = errors.New("session: already authenticated")
	ErrInvalidRefresh       = errors.New("session: refresh token mismatch")
	// ErrOperationUnsupported: the resolved provider lacks the capability
	// the operation needs (e.g. no RedeemToken).
	ErrOperationUnsupported = errors.New("session: operation not supported by method")
)

// Session is the stored record. AccountID empty means unauthenticated.
type Session struct {
	ID              string            `json:"id"`
	AccountID       string            `json:"account_id,omitempty"`
	Method          string            `json:"method,omitempty"`
	RefreshHash     string            `json:"refresh_hash"`
	ExtraClaims     map[string]string `json:"extra_claims,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	AuthenticatedAt time.Time         `json:"authenticated_at,omitempty"`
}

func (s *Session) Authenticated() bool { return s.AccountID != "" }

// Created is the result of creating a session.
type Created struct {
	SessionID    string
	AccountID    string
	Token        string
	RefreshToken string
}

// Auth is the result of authenticating an existing session.
type Auth struct {
	AccountID string
	Token     string
}

// DeleteResult reports how a logout completed. A non-empty
// ExternalLogoutURL means the caller still owes the provider a round trip.
type DeleteResult struct {
	ExternalLogoutURL string
}

// RedemptionError carries a non-success provider outcome up to the
// transport layer, which maps the variant to a status.
type RedemptionError struct {
	Method  string
	Kind    provider.OutcomeKind
	Reason  string
	Pending bool // true for the re-enterable unauthenticated variant
}

func (e *RedemptionError) Error() string {
	return fmt.Sprintf("session: redemption via %q: %s (%s)", e.Method, e.Kind, e.Reason)
}
