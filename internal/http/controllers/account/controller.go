// Package account exposes account management: creation with a local
// credential, credential linking, secret rotation and deletion.
package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	dto "github.com/dropDatabas3/crossjohn/internal/http/dto/account"
	httperrors "github.com/dropDatabas3/crossjohn/internal/http/errors"
	"github.com/dropDatabas3/crossjohn/internal/http/helpers"
	"github.com/dropDatabas3/crossjohn/internal/identity"
	"github.com/dropDatabas3/crossjohn/internal/observability/logger"
)

// Controller handles /v1/account.
type Controller struct {
	mapper *identity.Mapper
}

func NewController(mapper *identity.Mapper) *Controller {
	return &Controller{mapper: mapper}
}

// Create handles POST /v1/account.
func (c *Controller) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req dto.CreateAccountRequest
	if !helpers.DecodeJSON(w, r, &req) {
		return
	}
	if req.Subject == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("subject is required"))
		return
	}

	accountID, err := c.mapper.CreateAccount(ctx, req.DisplayName, req.Subject, req.EmailLike, req.Secret, req.ForceChange)
	if err != nil {
		logger.From(ctx).With(logger.Layer("controller"), logger.Op("Account.Create")).
			Debug("create failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.MapDomain(err))
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, dto.CreateAccountResponse{AccountID: accountID})
}

// Link handles POST /v1/account/{id}/link.
func (c *Controller) Link(w http.ResponseWriter, r *http.Request) {
	var req dto.LinkCredentialRequest
	if !helpers.DecodeJSON(w, r, &req) {
		return
	}
	if req.Method == "" || req.Subject == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("method and subject are required"))
		return
	}

	if err := c.mapper.LinkCredential(r.Context(), chi.URLParam(r, "id"), req.Method, req.Subject); err != nil {
		httperrors.WriteError(w, httperrors.MapDomain(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RotateSecret handles PUT /v1/account/{id}/secret.
func (c *Controller) RotateSecret(w http.ResponseWriter, r *http.Request) {
	var req dto.RotateSecretRequest
	if !helpers.DecodeJSON(w, r, &req) {
		return
	}
	if req.NewSecret == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("new_secret is required"))
		return
	}

	if err := c.mapper.RotateSecret(r.Context(), chi.URLParam(r, "id"), req.NewSecret); err != nil {
		httperrors.WriteError(w, httperrors.MapDomain(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /v1/account/{id}.
func (c *Controller) Delete(w http.ResponseWriter, r *http.Request) {
	if err := c.mapper.DeleteAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		httperrors.WriteError(w, httperrors.MapDomain(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
