// Package session exposes the session resource: create, read, authenticate,
// refresh and delete.
package session

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	dto "github.com/dropDatabas3/crossjohn/internal/http/dto/session"
	httperrors "github.com/dropDatabas3/crossjohn/internal/http/errors"
	"github.com/dropDatabas3/crossjohn/internal/http/helpers"
	"github.com/dropDatabas3/crossjohn/internal/observability/logger"
	"github.com/dropDatabas3/crossjohn/internal/provider"
	sess "github.com/dropDatabas3/crossjohn/internal/session"
)

// Controller handles /v1/session.
type Controller struct {
	manager *sess.Manager
}

func NewController(manager *sess.Manager) *Controller {
	return &Controller{manager: manager}
}

// Create handles POST /v1/session. With method+params the session is born
// authenticated; without them it is anonymous.
func (c *Controller) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Session.Create"))

	var req dto.CreateSessionRequest
	if !helpers.DecodeJSON(w, r, &req) {
		return
	}

	if req.Method == "" {
		created, err := c.manager.CreateSession(ctx, req.SessionID)
		if err != nil {
			httperrors.WriteError(w, httperrors.MapDomain(err))
			return
		}
		helpers.WriteJSON(w, http.StatusCreated, dto.SessionResponse{
			SessionID:    created.SessionID,
			Token:        created.Token,
			RefreshToken: created.RefreshToken,
		})
		return
	}

	created, err := c.manager.CreateAuthenticatedSession(ctx, req.SessionID, req.Method, provider.Params(req.Params))
	if err != nil {
		if pending(w, err) {
			return
		}
		log.Debug("create authenticated failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.MapDomain(err))
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, dto.SessionResponse{
		SessionID:    created.SessionID,
		AccountID:    created.AccountID,
		Token:        created.Token,
		RefreshToken: created.RefreshToken,
	})
}

// Get handles GET /v1/session/{id}.
func (c *Controller) Get(w http.ResponseWriter, r *http.Request) {
	s, err := c.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httperrors.WriteError(w, httperrors.MapDomain(err))
		return
	}
	resp := dto.SessionInfoResponse{
		SessionID:     s.ID,
		AccountID:     s.AccountID,
		Method:        s.Method,
		Authenticated: s.Authenticated(),
		ExtraClaims:   s.ExtraClaims,
		CreatedAt:     s.CreatedAt,
	}
	if !s.AuthenticatedAt.IsZero() {
		t := s.AuthenticatedAt
		resp.AuthenticatedAt = &t
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}

// Authenticate handles PUT /v1/session/{id}: the re-authentication path for
// an anonymous session. At most one caller ever succeeds.
func (c *Controller) Authenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	var req dto.AuthenticateRequest
	if !helpers.DecodeJSON(w, r, &req) {
		return
	}
	if req.Method == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("method is required"))
		return
	}

	auth, err := c.manager.Authenticate(ctx, sessionID, req.Method, provider.Params(req.Params))
	if err != nil {
		if pending(w, err) {
			return
		}
		httperrors.WriteError(w, httperrors.MapDomain(err))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.SessionResponse{
		SessionID: sessionID,
		AccountID: auth.AccountID,
		Token:     auth.Token,
	})
}

// Refresh handles POST /v1/session/{id}/refresh.
func (c *Controller) Refresh(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var req dto.RefreshRequest
	if !helpers.DecodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("refresh_token is required"))
		return
	}

	res, err := c.manager.Refresh(r.Context(), sessionID, req.RefreshToken)
	if err != nil {
		httperrors.WriteError(w, httperrors.MapDomain(err))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.SessionResponse{
		SessionID:    sessionID,
		AccountID:    res.AccountID,
		Token:        res.Token,
		RefreshToken: res.RefreshToken,
	})
}

// Delete handles DELETE /v1/session/{id}. 202 when the provider requires an
// external logout round trip, 200 when the logout completed locally.
func (c *Controller) Delete(w http.ResponseWriter, r *http.Request) {
	res, err := c.manager.Delete(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("callback"))
	if err != nil {
		httperrors.WriteError(w, httperrors.MapDomain(err))
		return
	}
	if res.ExternalLogoutURL != "" {
		helpers.WriteJSON(w, http.StatusAccepted, dto.DeleteSessionResponse{
			Status:    "external_logout_required",
			LogoutURL: res.ExternalLogoutURL,
		})
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.DeleteSessionResponse{Status: "logged_out"})
}

// pending maneja el outcome no-terminal Unauthenticated como 202: el caller
// puede reintentar con el parámetro faltante.
func pending(w http.ResponseWriter, err error) bool {
	var redemption *sess.RedemptionError
	if errors.As(err, &redemption) && redemption.Pending {
		helpers.WriteJSON(w, http.StatusAccepted, dto.PendingResponse{
			Status: "pending",
			Reason: redemption.Reason,
		})
		return true
	}
	return false
}
