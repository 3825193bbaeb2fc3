// Package dto define los request/response JSON del recurso cuenta.
package dto

// CreateAccountRequest da de alta una cuenta con credencial local.
type CreateAccountRequest struct {
	DisplayName string `json:"display_name"`
	Subject     string `json:"subject"`
	EmailLike   bool   `json:"email_like,omitempty"`
	Secret      string `json:"secret,omitempty"`
	ForceChange bool   `json:"force_change,omitempty"`
}

// CreateAccountResponse retorna el id asignado.
type CreateAccountResponse struct {
	AccountID string `json:"account_id"`
}

// LinkCredentialRequest asocia una credencial externa a la cuenta.
type LinkCredentialRequest struct {
	Method  string `json:"method"`
	Subject string `json:"subject"`
}

// RotateSecretRequest reemplaza el secreto local.
type RotateSecretRequest struct {
	NewSecret string `json:"new_secret"`
}
