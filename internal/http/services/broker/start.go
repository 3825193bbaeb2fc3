// Package broker contains the flow services behind the login/logout/signup
// redirect endpoints: they mint correlation state, resolve the provider and
// build the external URL the user is sent to.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/crossjohn/internal/correlation"
	"github.com/dropDatabas3/crossjohn/internal/observability/logger"
	"github.com/dropDatabas3/crossjohn/internal/provider"
)

// ErrFlowUnsupported: the method's provider does not expose the URL the
// flow needs (e.g. SAML has no signup URL).
var ErrFlowUnsupported = errors.New("broker: flow not supported by method")

// Registry resolves method names to constructed providers.
type Registry interface {
	Get(ctx context.Context, method string) (provider.Provider, error)
}

// StateIssuer mints correlation states.
type StateIssuer interface {
	Issue(ctx context.Context, purpose, method, callback string) (string, error)
}

// StartService builds the external URL each flow begins with. Every URL
// embeds a fresh single-use correlation state; two calls for the same
// method yield URLs differing only in the state.
type StartService interface {
	StartLogin(ctx context.Context, method, callbackAddress string) (string, error)
	StartLogout(ctx context.Context, method, callbackAddress string) (string, error)
	StartSignup(ctx context.Context, method, callbackAddress string) (string, error)
}

// StartDeps contains dependencies for the start service.
type StartDeps struct {
	Registry Registry
	States   StateIssuer
}

type startService struct {
	registry Registry
	states   StateIssuer
}

func NewStartService(deps StartDeps) StartService {
	return &startService{registry: deps.Registry, states: deps.States}
}

func (s *startService) StartLogin(ctx context.Context, method, callbackAddress string) (string, error) {
	return s.start(ctx, correlation.PurposeLogin, method, callbackAddress)
}

func (s *startService) StartLogout(ctx context.Context, method, callbackAddress string) (string, error) {
	return s.start(ctx, correlation.PurposeLogout, method, callbackAddress)
}

func (s *startService) StartSignup(ctx context.Context, method, callbackAddress string) (string, error) {
	return s.start(ctx, correlation.PurposeSignup, method, callbackAddress)
}

func (s *startService) start(ctx context.Context, purpose, method, callbackAddress string) (string, error) {
	p, err := s.registry.Get(ctx, method)
	if err != nil {
		return "", err
	}

	state, err := s.states.Issue(ctx, purpose, method, callbackAddress)
	if err != nil {
		return "", fmt.Errorf("broker: issue state: %w", err)
	}

	var u string
	switch purpose {
	case correlation.PurposeLogin:
		builder, ok := p.(provider.LoginURLBuilder)
		if !ok {
			return "", fmt.Errorf("%w: %q has no login URL", ErrFlowUnsupported, method)
		}
		u, err = builder.GetLoginURL(ctx, state, callbackAddress)
	case correlation.PurposeLogout:
		builder, ok := p.(provider.LogoutURLBuilder)
		if !ok {
			return "", fmt.Errorf("%w: %q has no logout URL", ErrFlowUnsupported, method)
		}
		u, err = builder.GetLogoutURL(ctx, state, callbackAddress)
	case correlation.PurposeSignup:
		builder, ok := p.(provider.SignupURLBuilder)
		if !ok {
			return "", fmt.Errorf("%w: %q has no signup URL", ErrFlowUnsupported, method)
		}
		u, err = builder.GetSignupURL(ctx, state, callbackAddress)
	default:
		return "", fmt.Errorf("broker: unknown purpose %q", purpose)
	}
	if err != nil {
		return "", err
	}

	logger.From(ctx).With(logger.Layer("service"), logger.Component("broker.start")).
		Debug("flow started", logger.Provider(method), logger.String("purpose", purpose))
	return u, nil
}
