package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/crossjohn/internal/correlation"
	"github.com/dropDatabas3/crossjohn/internal/metrics"
	"github.com/dropDatabas3/crossjohn/internal/observability/logger"
	"github.com/dropDatabas3/crossjohn/internal/provider"
	tokens "github.com/dropDatabas3/crossjohn/internal/security/token"
	"github.com/dropDatabas3/crossjohn/internal/store"
)

const partSession = "session"

func sessionKey(id string) store.Key {
	return store.Key{Partition: partSession, Row: id}
}

// Registry resolves method names to constructed providers.
type Registry interface {
	Get(ctx context.Context, method string) (provider.Provider, error)
}

// Identity is the slice of the identity mapper the manager consumes:
// turning a redeemed subject into an internal account, provisioning on
// first sight.
type Identity interface {
	EnsureAccount(ctx context.Context, method, subject, displayName string) (string, error)
}

// Issuer signs the broker bearer tokens.
type Issuer interface {
	Issue(sessionID, accountID string, claims map[string]string, expiry time.Time) (string, error)
}

// StateIssuer mints correlation states for the logout round trip.
type StateIssuer interface {
	Issue(ctx context.Context, purpose, method, callback string) (string, error)
}

// StateConsumer burns the single-use nonce of a correlation state. Exactly
// one concurrent consumer of the same state wins.
type StateConsumer interface {
	Consume(ctx context.Context, tokenString string) (*correlation.State, error)
}

// Manager implements the session lifecycle.
type Manager struct {
	KV       store.KV
	Registry Registry
	Identity Identity
	Issuer   Issuer
	States   StateIssuer

	// Consumer, when set, is invoked after a successful redemption and
	// before any session write for outcomes that echo a correlation state.
	// Pending (unauthenticated) outcomes never reach it, so their state
	// stays valid for re-entry.
	Consumer StateConsumer

	// TokenTTL defaults to one hour.
	TokenTTL time.Duration
}

func (m *Manager) ttl() time.Duration {
	if m.TokenTTL <= 0 {
		return time.Hour
	}
	return m.TokenTTL
}

// CreateSession creates an unauthenticated session with an anonymous token.
// Empty sessionID generates one.
func (m *Manager) CreateSession(ctx context.Context, sessionID string) (*Created, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	refresh, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	s := Session{
		ID:          sessionID,
		RefreshHash: tokens.SHA256Base64URL(refresh),
		CreatedAt:   time.Now().UTC(),
	}
	isNew, _, err := m.KV.CreateOrGet(ctx, sessionKey(sessionID), mustJSON(s))
	if err != nil {
		metrics.SessionOps.WithLabelValues("create", "error").Inc()
		return nil, err
	}
	if !isNew {
		metrics.SessionOps.WithLabelValues("create", "conflict").Inc()
		return nil, ErrAlreadyExists
	}

	bearer, err := m.Issuer.Issue(sessionID, "", nil, time.Now().UTC().Add(m.ttl()))
	if err != nil {
		return nil, err
	}
	metrics.SessionOps.WithLabelValues("create", "ok").Inc()
	logger.From(ctx).With(logger.Layer("session"), logger.Op("CreateSession")).
		Info("session created", logger.SessionID(sessionID))
	return &Created{SessionID: sessionID, Token: bearer, RefreshToken: refresh}, nil
}

// CreateAuthenticatedSession composes redemption, identity resolution and
// issuance in one step, for sessions that did not previously exist. The
// session record is written only after the full outcome is known.
func (m *Manager) CreateAuthenticatedSession(ctx context.Context, sessionID, method string, params provider.Params) (*Created, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	outcome, err := m.redeem(ctx, method, params)
	if err != nil {
		metrics.SessionOps.WithLabelValues("create_authenticated", "error").Inc()
		return nil, err
	}
	if err := m.consumeState(ctx, outcome); err != nil {
		metrics.SessionOps.WithLabelValues("create_authenticated", "conflict").Inc()
		return nil, err
	}
	accountID, err := m.resolveAccount(ctx, method, outcome)
	if err != nil {
		metrics.SessionOps.WithLabelValues("create_authenticated", "error").Inc()
		return nil, err
	}

	refresh, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	s := Session{
		ID:              sessionID,
		AccountID:       accountID,
		Method:          method,
		RefreshHash:     tokens.SHA256Base64URL(refresh),
		ExtraClaims:     outcome.ExtraParams,
		CreatedAt:       now,
		AuthenticatedAt: now,
	}
	isNew, _, err := m.KV.CreateOrGet(ctx, sessionKey(sessionID), mustJSON(s))
	if err != nil {
		return nil, err
	}
	if !isNew {
		metrics.SessionOps.WithLabelValues("create_authenticated", "conflict").Inc()
		return nil, ErrAlreadyExists
	}

	bearer, err := m.Issuer.Issue(sessionID, accountID, outcome.ExtraParams, now.Add(m.ttl()))
	if err != nil {
		return nil, err
	}
	metrics.SessionOps.WithLabelValues("create_authenticated", "ok").Inc()
	logger.From(ctx).With(logger.Layer("session"), logger.Op("CreateAuthenticatedSession")).
		Info("authenticated session created",
			logger.SessionID(sessionID), logger.AccountID(accountID), logger.Provider(method))
	return &Created{SessionID: sessionID, AccountID: accountID, Token: bearer, RefreshToken: refresh}, nil
}

// errAccountAlreadySet aborts the CAS mutator without writing.
var errAccountAlreadySet = errors.New("account already set")

// Authenticate re-authenticates an anonymous session. At most one caller
// ever wins: the accountId field is set under a compare-and-swap, so a
// concurrent duplicate callback gets ErrAlreadyAuthenticated, not an
// overwrite.
func (m *Manager) Authenticate(ctx context.Context, sessionID, method string, params provider.Params) (*Auth, error) {
	rec, err := m.KV.Get(ctx, sessionKey(sessionID))
	if errors.Is(err, store.ErrNotFound) {
		metrics.SessionOps.WithLabelValues("authenticate", "not_found").Inc()
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var current Session
	if err := json.Unmarshal(rec.Value, &current); err != nil {
		return nil, fmt.Errorf("session: decode record: %w", err)
	}
	if current.Authenticated() {
		metrics.SessionOps.WithLabelValues("authenticate", "conflict").Inc()
		return nil, ErrAlreadyAuthenticated
	}

	// Full redemption and account resolution happen before any session
	// mutation; an abandoned call leaves the record untouched.
	outcome, err := m.redeem(ctx, method, params)
	if err != nil {
		metrics.SessionOps.WithLabelValues("authenticate", "rejected").Inc()
		return nil, err
	}
	if err := m.consumeState(ctx, outcome); err != nil {
		metrics.SessionOps.WithLabelValues("authenticate", "conflict").Inc()
		return nil, err
	}
	accountID, err := m.resolveAccount(ctx, method, outcome)
	if err != nil {
		metrics.SessionOps.WithLabelValues("authenticate", "error").Inc()
		return nil, err
	}

	_, err = m.KV.UpdateIfMatch(ctx, sessionKey(sessionID), func(raw []byte) ([]byte, error) {
		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		if s.Authenticated() {
			return nil, errAccountAlreadySet
		}
		s.AccountID = accountID
		s.Method = method
		s.AuthenticatedAt = time.Now().UTC()
		if len(outcome.ExtraParams) > 0 {
			if s.ExtraClaims == nil {
				s.ExtraClaims = map[string]string{}
			}
			for k, v := range outcome.ExtraParams {
				s.ExtraClaims[k] = v
			}
		}
		return json.Marshal(s)
	})
	switch {
	case errors.Is(err, errAccountAlreadySet), errors.Is(err, store.ErrConcurrency):
		metrics.SessionOps.WithLabelValues("authenticate", "conflict").Inc()
		return nil, ErrAlreadyAuthenticated
	case errors.Is(err, store.ErrNotFound):
		metrics.SessionOps.WithLabelValues("authenticate", "not_found").Inc()
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}

	bearer, err := m.Issuer.Issue(sessionID, accountID, outcome.ExtraParams, time.Now().UTC().Add(m.ttl()))
	if err != nil {
		return nil, err
	}
	metrics.SessionOps.WithLabelValues("authenticate", "ok").Inc()
	logger.From(ctx).With(logger.Layer("session"), logger.Op("Authenticate")).
		Info("session authenticated",
			logger.SessionID(sessionID), logger.AccountID(accountID), logger.Provider(method))
	return &Auth{AccountID: accountID, Token: bearer}, nil
}

// Get reads one session.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	rec, err := m.KV.Get(ctx, sessionKey(sessionID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(rec.Value, &s); err != nil {
		return nil, fmt.Errorf("session: decode record: %w", err)
	}
	return &s, nil
}

// Refresh rotates the bearer token. The presented refresh token is checked
// against the stored hash and replaced, so each refresh token works once.
func (m *Manager) Refresh(ctx context.Context, sessionID, refreshToken string) (*Created, error) {
	newRefresh, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	presented := tokens.SHA256Base64URL(refreshToken)

	var current Session
	_, err = m.KV.UpdateIfMatch(ctx, sessionKey(sessionID), func(raw []byte) ([]byte, error) {
		if err := json.Unmarshal(raw, &current); err != nil {
			return nil, err
		}
		if current.RefreshHash != presented {
			return nil, ErrInvalidRefresh
		}
		current.RefreshHash = tokens.SHA256Base64URL(newRefresh)
		return json.Marshal(current)
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		metrics.SessionOps.WithLabelValues("refresh", "not_found").Inc()
		return nil, ErrNotFound
	case errors.Is(err, ErrInvalidRefresh):
		metrics.SessionOps.WithLabelValues("refresh", "rejected").Inc()
		return nil, ErrInvalidRefresh
	case errors.Is(err, store.ErrConcurrency):
		// Un refresh concurrente rotó primero; el token presentado ya no vale.
		metrics.SessionOps.WithLabelValues("refresh", "rejected").Inc()
		return nil, ErrInvalidRefresh
	case err != nil:
		return nil, err
	}

	bearer, err := m.Issuer.Issue(sessionID, current.AccountID, current.ExtraClaims, time.Now().UTC().Add(m.ttl()))
	if err != nil {
		return nil, err
	}
	metrics.SessionOps.WithLabelValues("refresh", "ok").Inc()
	return &Created{SessionID: sessionID, AccountID: current.AccountID, Token: bearer, RefreshToken: newRefresh}, nil
}

// Delete terminates a session. When the originating provider exposes a
// logout URL the result carries it and the caller owes the provider that
// round trip; the local record is removed either way.
func (m *Manager) Delete(ctx context.Context, sessionID, callbackAddress string) (*DeleteResult, error) {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		metrics.SessionOps.WithLabelValues("delete", "not_found").Inc()
		return nil, err
	}

	logoutURL := ""
	if s.Method != "" {
		logoutURL = m.externalLogoutURL(ctx, s.Method, callbackAddress)
	}

	if err := m.KV.Delete(ctx, sessionKey(sessionID)); err != nil && !errors.Is(err, store.ErrNotFound) {
		metrics.SessionOps.WithLabelValues("delete", "error").Inc()
		return nil, err
	}
	metrics.SessionOps.WithLabelValues("delete", "ok").Inc()
	logger.From(ctx).With(logger.Layer("session"), logger.Op("Delete")).
		Info("session deleted", logger.SessionID(sessionID),
			logger.Bool("external_logout", logoutURL != ""))
	return &DeleteResult{ExternalLogoutURL: logoutURL}, nil
}

// externalLogoutURL asks the originating provider for its logout URL. Any
// failure here degrades to a local-only logout.
func (m *Manager) externalLogoutURL(ctx context.Context, method, callbackAddress string) string {
	p, err := m.Registry.Get(ctx, method)
	if err != nil {
		return ""
	}
	builder, ok := p.(provider.LogoutURLBuilder)
	if !ok {
		return ""
	}
	state := ""
	if m.States != nil {
		if st, err := m.States.Issue(ctx, correlation.PurposeLogout, method, callbackAddress); err == nil {
			state = st
		}
	}
	u, err := builder.GetLogoutURL(ctx, state, callbackAddress)
	if err != nil {
		return ""
	}
	return u
}

// consumeState burns the correlation nonce a successful outcome echoes.
// Redemption already happened; the session record has not been written yet.
// A loser here (duplicate callback, another replica) gets the replay error
// and writes nothing. Direct credential presentation carries no state and
// passes through.
func (m *Manager) consumeState(ctx context.Context, outcome provider.Outcome) error {
	if m.Consumer == nil || outcome.CorrelationState == "" {
		return nil
	}
	_, err := m.Consumer.Consume(ctx, outcome.CorrelationState)
	return err
}

// redeem resolves the provider and runs RedeemToken, translating registry
// failures and non-success outcomes into typed errors.
func (m *Manager) redeem(ctx context.Context, method string, params provider.Params) (provider.Outcome, error) {
	p, err := m.Registry.Get(ctx, method)
	if err != nil {
		return provider.Outcome{}, err
	}
	redeemer, ok := p.(provider.TokenRedeemer)
	if !ok {
		return provider.Outcome{}, fmt.Errorf("%w: %q cannot redeem credentials", ErrOperationUnsupported, method)
	}

	started := time.Now()
	outcome := redeemer.RedeemToken(ctx, params)
	metrics.RedemptionLatency.WithLabelValues(method).Observe(float64(time.Since(started).Milliseconds()))
	metrics.Redemptions.WithLabelValues(method, outcome.Kind.String()).Inc()

	if !outcome.Succeeded() {
		logger.From(ctx).With(logger.Layer("session"), logger.Provider(method)).
			Info("redemption not successful",
				logger.Outcome(outcome.Kind.String()), logger.String("reason", outcome.Reason))
		return outcome, &RedemptionError{
			Method:  method,
			Kind:    outcome.Kind,
			Reason:  outcome.Reason,
			Pending: outcome.Kind == provider.KindUnauthenticated,
		}
	}
	return outcome, nil
}

// resolveAccount turns a successful outcome into an internal account id.
// Providers that already know the account (local) short-circuit; the rest
// go through the identity mapper, account creation before session linking.
func (m *Manager) resolveAccount(ctx context.Context, method string, outcome provider.Outcome) (string, error) {
	if outcome.KnownAccountID != "" {
		return outcome.KnownAccountID, nil
	}
	displayName := outcome.ExtraParams["name"]
	if displayName == "" {
		displayName = outcome.Subject
	}
	return m.Identity.EnsureAccount(ctx, method, outcome.Subject, displayName)
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
