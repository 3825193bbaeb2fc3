// Package login exposes the flow-start endpoints: the browser is redirected
// to the external provider with a fresh correlation state embedded.
package login

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	dto "github.com/dropDatabas3/crossjohn/internal/http/dto/session"
	httperrors "github.com/dropDatabas3/crossjohn/internal/http/errors"
	"github.com/dropDatabas3/crossjohn/internal/http/helpers"
	"github.com/dropDatabas3/crossjohn/internal/http/services/broker"
	"github.com/dropDatabas3/crossjohn/internal/observability/logger"
)

// Controller handles GET /v1/login/{method}, /v1/logout/{method} and
// /v1/signup/{method}.
type Controller struct {
	service broker.StartService
}

func NewController(service broker.StartService) *Controller {
	return &Controller{service: service}
}

func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	c.start(w, r, "Login.Start", c.service.StartLogin)
}

func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	c.start(w, r, "Login.Logout", c.service.StartLogout)
}

func (c *Controller) Signup(w http.ResponseWriter, r *http.Request) {
	c.start(w, r, "Login.Signup", c.service.StartSignup)
}

// start resuelve la URL externa y redirige (302). Con ?json=1 responde el
// body StartResponse en lugar de redirigir, para clientes no-browser.
func (c *Controller) start(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, method, callback string) (string, error)) {
	ctx := r.Context()
	method := chi.URLParam(r, "method")
	callback := r.URL.Query().Get("callback")

	u, err := fn(ctx, method, callback)
	if err != nil {
		if errors.Is(err, broker.ErrFlowUnsupported) {
			httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail(err.Error()))
			return
		}
		logger.From(ctx).With(logger.Layer("controller"), logger.Op(op)).
			Debug("start failed", logger.Provider(method), logger.Err(err))
		httperrors.WriteError(w, httperrors.MapDomain(err))
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	if r.URL.Query().Get("json") == "1" {
		helpers.WriteJSON(w, http.StatusOK, dto.StartResponse{URL: u})
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}
