// Package dto define los request/response JSON del recurso sesión.
package dto

import "time"

// CreateSessionRequest crea una sesión. Con Method+Params presentes la
// sesión nace autenticada; sin ellos nace anónima.
type CreateSessionRequest struct {
	SessionID string            `json:"session_id,omitempty"`
	Method    string            `json:"method,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

// AuthenticateRequest re-autentica una sesión anónima existente.
type AuthenticateRequest struct {
	Method string            `json:"method"`
	Params map[string]string `json:"params"`
}

// RefreshRequest rota el bearer token de la sesión.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SessionResponse es la respuesta de creación/autenticación/refresh.
type SessionResponse struct {
	SessionID    string `json:"session_id"`
	AccountID    string `json:"account_id,omitempty"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// SessionInfoResponse es la vista de lectura de una sesión.
type SessionInfoResponse struct {
	SessionID       string            `json:"session_id"`
	AccountID       string            `json:"account_id,omitempty"`
	Method          string            `json:"method,omitempty"`
	Authenticated   bool              `json:"authenticated"`
	ExtraClaims     map[string]string `json:"extra_claims,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	AuthenticatedAt *time.Time        `json:"authenticated_at,omitempty"`
}

// DeleteSessionResponse reporta cómo terminó el logout. Un LogoutURL no
// vacío indica que el caller debe completar la vuelta externa (202).
type DeleteSessionResponse struct {
	Status    string `json:"status"` // "logged_out" | "external_logout_required"
	LogoutURL string `json:"logout_url,omitempty"`
}

// StartResponse entrega la URL externa a la que redirigir al usuario.
type StartResponse struct {
	URL string `json:"url"`
}

// PendingResponse es la respuesta 202 para el outcome no-terminal
// Unauthenticated: el caller puede reintentar el callback con el parámetro
// faltante.
type PendingResponse struct {
	Status string `json:"status"` // siempre "pending"
	Reason string `json:"reason,omitempty"`
}
