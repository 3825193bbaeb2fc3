package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/crossjohn/internal/correlation"
	"github.com/dropDatabas3/crossjohn/internal/identity"
	"github.com/dropDatabas3/crossjohn/internal/provider"
	"github.com/dropDatabas3/crossjohn/internal/provider/registry"
	"github.com/dropDatabas3/crossjohn/internal/session"
)

// errorResponse estructura interna para la serialización JSON.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe una respuesta HTTP basada en el error proporcionado.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	resp := errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// MapDomain traduce errores de las capas de dominio (session, identity,
// registry, correlation) a la taxonomía HTTP del broker. Los controllers
// delegan acá para no repetir el switch en cada endpoint.
func MapDomain(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}

	var redemption *session.RedemptionError
	if errors.As(err, &redemption) {
		return mapOutcome(redemption)
	}
	var construction *registry.ConstructionError
	if errors.As(err, &construction) {
		return ErrMisconfigured.WithCause(err).WithDetail(construction.Method)
	}
	var associated *identity.AlreadyAssociatedError
	if errors.As(err, &associated) {
		return ErrAlreadyAssociated.WithDetail("account_id=" + associated.AccountID)
	}
	var exists *identity.AlreadyExistsError
	if errors.As(err, &exists) {
		return ErrAccountExists.WithDetail("account_id=" + exists.AccountID)
	}
	var policy *identity.PasswordPolicyError
	if errors.As(err, &policy) {
		return ErrPasswordInsufficient.WithDetail(strings.Join(policy.Reasons, ", "))
	}

	switch {
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, session.ErrAlreadyExists):
		return ErrSessionExists
	case errors.Is(err, session.ErrAlreadyAuthenticated):
		return ErrAlreadyAuthenticated
	case errors.Is(err, session.ErrInvalidRefresh):
		return ErrInvalidCredentials.WithDetail("refresh token rejected")
	case errors.Is(err, session.ErrOperationUnsupported):
		return ErrBadRequest.WithDetail("operation not supported by method")
	case errors.Is(err, registry.ErrUnknownMethod):
		return ErrUnknownMethod
	case errors.Is(err, identity.ErrNotFound),
		errors.Is(err, identity.ErrAuthorizationNotFound):
		return ErrAccountNotFound
	case errors.Is(err, identity.ErrMethodAlreadyLinked):
		return ErrAlreadyAssociated.WithDetail("method already linked on this account")
	case errors.Is(err, correlation.ErrStateInvalid),
		errors.Is(err, correlation.ErrStateExpired),
		errors.Is(err, correlation.ErrStateReplayed),
		errors.Is(err, correlation.ErrStateMismatch):
		// El estado de correlación es el único control anti-forgery: su
		// ausencia o mismatch es equivalente a credenciales inválidas.
		return ErrInvalidCredentials.WithCause(err)
	}
	return ErrInternalServerError.WithCause(err)
}

func mapOutcome(e *session.RedemptionError) *AppError {
	switch e.Kind {
	case provider.KindInvalidCredentials:
		return ErrInvalidCredentials.WithDetail(e.Reason)
	case provider.KindCouldNotConnect:
		return ErrProviderUnreachable.WithDetail(e.Reason)
	case provider.KindUnspecifiedConfiguration:
		return ErrMisconfigured.WithDetail(e.Reason)
	case provider.KindFailure:
		return ErrProviderFailure.WithDetail(e.Reason)
	case provider.KindUnauthenticated:
		// No terminal: el controller lo maneja como 202 antes de llegar acá.
		return ErrInvalidCredentials.WithDetail("identity proof not yet present")
	}
	return ErrInternalServerError.WithCause(e)
}
