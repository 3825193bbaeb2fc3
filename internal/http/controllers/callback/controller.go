// Package callback terminates provider redirect round trips: the external
// system sends the user back here with protocol parameters plus the echoed
// correlation state.
package callback

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	dto "github.com/dropDatabas3/crossjohn/internal/http/dto/session"
	httperrors "github.com/dropDatabas3/crossjohn/internal/http/errors"
	"github.com/dropDatabas3/crossjohn/internal/http/helpers"
	"github.com/dropDatabas3/crossjohn/internal/http/services/broker"
	"github.com/dropDatabas3/crossjohn/internal/observability/logger"
	"github.com/dropDatabas3/crossjohn/internal/provider"
	sess "github.com/dropDatabas3/crossjohn/internal/session"
)

// Controller handles GET/POST /v1/callback/{method}.
type Controller struct {
	service broker.CallbackService
}

func NewController(service broker.CallbackService) *Controller {
	return &Controller{service: service}
}

// Callback flattens query and form values into provider params and hands
// them to the flow service. SAML posts a form; OAuth2/OIDC come back on the
// query string.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	method := chi.URLParam(r, "method")
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("Callback"), logger.Provider(method))

	if err := r.ParseForm(); err != nil {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("malformed parameters"))
		return
	}
	params := provider.Params{}
	for k, vs := range r.Form {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	sessionID := params["session_id"]
	delete(params, "session_id")

	result, err := c.service.HandleCallback(ctx, method, sessionID, params)
	if err != nil {
		var redemption *sess.RedemptionError
		if errors.As(err, &redemption) && redemption.Pending {
			helpers.WriteJSON(w, http.StatusAccepted, dto.PendingResponse{
				Status: "pending",
				Reason: redemption.Reason,
			})
			return
		}
		log.Debug("callback failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.MapDomain(err))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	if result.LoggedOut {
		helpers.WriteJSON(w, http.StatusOK, dto.DeleteSessionResponse{Status: "logged_out"})
		return
	}

	status := http.StatusOK
	if sessionID == "" {
		// El callback creó la sesión en lugar de autenticar una existente.
		status = http.StatusCreated
	}
	helpers.WriteJSON(w, status, dto.SessionResponse{
		SessionID:    result.SessionID,
		AccountID:    result.AccountID,
		Token:        result.Token,
		RefreshToken: result.RefreshToken,
	})
}
