// Package identity owns accounts and credential mappings: the durable links
// between an external (method, subject) pair and exactly one internal
// account id.
package identity

import (
	"errors"
	"fmt"
	"time"
)

// Account is the broker-side account record. SecretPHC is set only for
// accounts with a local credential.
type Account struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	EmailLike   bool      `json:"email_like"`
	ForceChange bool      `json:"force_change,omitempty"`
	SecretPHC   string    `json:"secret_phc,omitempty"`
	// DirectorySubject is the subject the external directory record was
	// created under. Needed to clean up on account deletion.
	DirectorySubject string `json:"directory_subject,omitempty"`
	// Mappings holds method -> external subject, at most one per method.
	Mappings  map[string]string `json:"mappings,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Mapping is one (method, subject) -> account link.
type Mapping struct {
	Method    string    `json:"method"`
	Subject   string    `json:"subject"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	// ErrNotFound: no mapping (or account) for the lookup.
	ErrNotFound = errors.New("identity: not found")
	// ErrAuthorizationNotFound: LinkCredential named an account that does
	// not exist.
	ErrAuthorizationNotFound = errors.New("identity: account not found")
	// ErrMethodAlreadyLinked: the account already carries a mapping for
	// this method under a different subject.
	ErrMethodAlreadyLinked = errors.New("identity: method already linked to another subject")
)

// AlreadyExistsError: account creation hit an existing record. AccountID is
// the pre-existing owner when it could be resolved.
type AlreadyExistsError struct {
	AccountID string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("identity: account already exists (account_id=%s)", e.AccountID)
}

// AlreadyAssociatedError: the (method, subject) pair is mapped to another
// account. Carries the conflicting id so the caller can decide to merge or
// reject; no mutation happened.
type AlreadyAssociatedError struct {
	AccountID string
}

func (e *AlreadyAssociatedError) Error() string {
	return fmt.Sprintf("identity: subject already associated with account %s", e.AccountID)
}

// PasswordPolicyError: the proposed secret fails the active policy.
type PasswordPolicyError struct {
	Reasons []string
}

func (e *PasswordPolicyError) Error() string {
	return fmt.Sprintf("identity: password insufficient: %v", e.Reasons)
}
