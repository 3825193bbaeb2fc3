package broker

import (
	"context"

	"github.com/dropDatabas3/crossjohn/internal/correlation"
	"github.com/dropDatabas3/crossjohn/internal/observability/logger"
	"github.com/dropDatabas3/crossjohn/internal/provider"
	"github.com/dropDatabas3/crossjohn/internal/session"
)

// CallbackResult is the terminal state of a completed callback.
type CallbackResult struct {
	// LoggedOut is set for logout-purpose callbacks; the session fields
	// stay empty.
	LoggedOut bool

	SessionID    string
	AccountID    string
	Token        string
	RefreshToken string
}

// Sessions is the slice of the session manager the callback consumes.
type Sessions interface {
	CreateAuthenticatedSession(ctx context.Context, sessionID, method string, params provider.Params) (*session.Created, error)
	Authenticate(ctx context.Context, sessionID, method string, params provider.Params) (*session.Auth, error)
}

// StateValidator validates and consumes correlation states. Peek verifies
// without burning the nonce; Consume takes it atomically.
type StateValidator interface {
	Peek(ctx context.Context, tokenString, expectMethod, expectPurpose string) (*correlation.State, error)
	Consume(ctx context.Context, tokenString string) (*correlation.State, error)
}

// CallbackService terminates a provider redirect round trip. The
// correlation state is validated before anything else: a callback the
// broker did not start never reaches the session manager. The nonce is
// consumed only on a terminal outcome (by the session manager for logins,
// here for logouts), so a pending round trip stays re-enterable.
type CallbackService interface {
	HandleCallback(ctx context.Context, method, sessionID string, params provider.Params) (*CallbackResult, error)
}

// CallbackDeps contains dependencies for the callback service.
type CallbackDeps struct {
	Sessions Sessions
	States   StateValidator
}

type callbackService struct {
	sessions Sessions
	states   StateValidator
}

func NewCallbackService(deps CallbackDeps) CallbackService {
	return &callbackService{sessions: deps.Sessions, states: deps.States}
}

func (s *callbackService) HandleCallback(ctx context.Context, method, sessionID string, params provider.Params) (*CallbackResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("broker.callback"), logger.Provider(method))

	raw := params.Get("state")
	if raw == "" {
		raw = params.Get("RelayState")
	}
	st, err := s.states.Peek(ctx, raw, method, "")
	if err != nil {
		log.Info("correlation state rejected", logger.Err(err))
		return nil, err
	}

	if st.Purpose == correlation.PurposeLogout {
		// El logout es terminal acá mismo; el nonce se quema ya.
		if _, err := s.states.Consume(ctx, raw); err != nil {
			log.Info("correlation state rejected", logger.Err(err))
			return nil, err
		}
		log.Debug("external logout completed")
		return &CallbackResult{LoggedOut: true}, nil
	}

	// Login y signup convergen: ambos terminan en una sesión autenticada,
	// aprovisionando la cuenta si el subject es nuevo.
	if sessionID == "" {
		created, err := s.sessions.CreateAuthenticatedSession(ctx, "", method, params)
		if err != nil {
			return nil, err
		}
		return &CallbackResult{
			SessionID:    created.SessionID,
			AccountID:    created.AccountID,
			Token:        created.Token,
			RefreshToken: created.RefreshToken,
		}, nil
	}

	auth, err := s.sessions.Authenticate(ctx, sessionID, method, params)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{
		SessionID: sessionID,
		AccountID: auth.AccountID,
		Token:     auth.Token,
	}, nil
}
