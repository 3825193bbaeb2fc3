// Package router arma el árbol de rutas del broker sobre chi.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accountctrl "github.com/dropDatabas3/crossjohn/internal/http/controllers/account"
	callbackctrl "github.com/dropDatabas3/crossjohn/internal/http/controllers/callback"
	healthctrl "github.com/dropDatabas3/crossjohn/internal/http/controllers/health"
	loginctrl "github.com/dropDatabas3/crossjohn/internal/http/controllers/login"
	sessionctrl "github.com/dropDatabas3/crossjohn/internal/http/controllers/session"
	mw "github.com/dropDatabas3/crossjohn/internal/http/middlewares"
	"github.com/dropDatabas3/crossjohn/internal/rate"
)

// Deps contiene los controllers ya construidos.
type Deps struct {
	Session  *sessionctrl.Controller
	Login    *loginctrl.Controller
	Callback *callbackctrl.Controller
	Account  *accountctrl.Controller
	Health   *healthctrl.Controller

	// Limiter opcional: limita por IP los endpoints que tocan credenciales.
	Limiter rate.Limiter

	// Registry para /metrics; nil usa el registro default de prometheus.
	Metrics prometheus.Gatherer
}

// New construye el router con la cadena estándar de middlewares.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.WithRequestID())
	r.Use(mw.WithRecover())
	r.Use(mw.WithLogging())

	r.Route("/v1", func(r chi.Router) {
		// Los endpoints que redimen credenciales van rate-limited por IP.
		cred := chi.Router(r)
		if deps.Limiter != nil {
			cred = r.With(mw.WithRateLimit(deps.Limiter))
		}

		cred.Post("/session", deps.Session.Create)
		r.Get("/session/{id}", deps.Session.Get)
		cred.Put("/session/{id}", deps.Session.Authenticate)
		cred.Post("/session/{id}/refresh", deps.Session.Refresh)
		r.Delete("/session/{id}", deps.Session.Delete)

		r.Get("/login/{method}", deps.Login.Login)
		r.Get("/logout/{method}", deps.Login.Logout)
		r.Get("/signup/{method}", deps.Login.Signup)

		cred.Get("/callback/{method}", deps.Callback.Callback)
		cred.Post("/callback/{method}", deps.Callback.Callback)

		cred.Post("/account", deps.Account.Create)
		r.Post("/account/{id}/link", deps.Account.Link)
		r.Put("/account/{id}/secret", deps.Account.RotateSecret)
		r.Delete("/account/{id}", deps.Account.Delete)
	})

	r.Get("/healthz", deps.Health.Live)
	r.Get("/readyz", deps.Health.Ready)

	gatherer := deps.Metrics
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
