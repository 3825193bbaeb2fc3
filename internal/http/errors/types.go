package errors

import (
	"fmt"
	"net/http"
)

// AppError define la estructura estándar para errores de la aplicación
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"` // No se serializa, usado para el header
	Err        error  `json:"-"` // Error original (causa), útil para logs, no se expone al cliente
}

// Error implementa la interfaz error
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite acceder al error original
func (e *AppError) Unwrap() error {
	return e.Err
}

// New crea un nuevo AppError
func New(status int, code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
	}
}

// FromError intenta convertir un error genérico en un AppError.
// Si no es un AppError, devuelve un error interno genérico conservando la causa.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return ErrInternalServerError.WithCause(err)
}

// WithDetail agrega detalles adicionales al error (útil para validaciones).
// Devuelve una COPIA del error para no mutar las variables globales base.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause agrega el error original (causa). Devuelve una COPIA del error.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// =================================================================================
// LISTA DE ERRORES PREDEFINIDOS
// =================================================================================

var (
	// 400
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud contiene sintaxis inválida o parámetros faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}
	ErrUnknownMethod = &AppError{
		Code:       "UNKNOWN_METHOD",
		Message:    "El método de credenciales solicitado no está configurado.",
		HTTPStatus: http.StatusBadRequest,
	}

	// 401
	ErrInvalidCredentials = &AppError{
		Code:       "INVALID_CREDENTIALS",
		Message:    "Las credenciales presentadas son inválidas o están malformadas.",
		HTTPStatus: http.StatusUnauthorized,
	}

	// 404
	ErrSessionNotFound = &AppError{
		Code:       "SESSION_NOT_FOUND",
		Message:    "La sesión indicada no existe.",
		HTTPStatus: http.StatusNotFound,
	}
	ErrAccountNotFound = &AppError{
		Code:       "ACCOUNT_NOT_FOUND",
		Message:    "La cuenta indicada no existe.",
		HTTPStatus: http.StatusNotFound,
	}

	// 405
	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "Método HTTP no permitido para este recurso.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	// 409
	ErrSessionExists = &AppError{
		Code:       "SESSION_EXISTS",
		Message:    "La sesión ya existe.",
		HTTPStatus: http.StatusConflict,
	}
	ErrAlreadyAuthenticated = &AppError{
		Code:       "ALREADY_AUTHENTICATED",
		Message:    "La sesión ya fue autenticada; no se sobreescribe.",
		HTTPStatus: http.StatusConflict,
	}
	ErrAlreadyAssociated = &AppError{
		Code:       "ALREADY_ASSOCIATED",
		Message:    "La credencial ya está asociada a otra cuenta.",
		HTTPStatus: http.StatusConflict,
	}
	ErrAccountExists = &AppError{
		Code:       "ACCOUNT_EXISTS",
		Message:    "La cuenta ya existe.",
		HTTPStatus: http.StatusConflict,
	}

	// 422
	ErrPasswordInsufficient = &AppError{
		Code:       "PASSWORD_INSUFFICIENT",
		Message:    "El secreto propuesto no cumple la política de contraseñas.",
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	// 500
	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "Error interno inesperado.",
		HTTPStatus: http.StatusInternalServerError,
	}
	ErrMisconfigured = &AppError{
		Code:       "PROVIDER_MISCONFIGURED",
		Message:    "El método de credenciales está mal configurado en el servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}

	// 502
	ErrProviderUnreachable = &AppError{
		Code:       "PROVIDER_UNREACHABLE",
		Message:    "No se pudo contactar al sistema de identidad externo.",
		HTTPStatus: http.StatusBadGateway,
	}
	ErrProviderFailure = &AppError{
		Code:       "PROVIDER_FAILURE",
		Message:    "El sistema de identidad externo respondió de forma inutilizable.",
		HTTPStatus: http.StatusBadGateway,
	}

	// 503
	ErrServiceUnavailable = &AppError{
		Code:       "SERVICE_UNAVAILABLE",
		Message:    "Servicio temporalmente no disponible.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
