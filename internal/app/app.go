// Package app es la raíz de composición: construye store, cache, issuer,
// registry de providers, mapper, session manager y el router HTTP a partir
// de la configuración.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	rdb "github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/crossjohn/internal/cache"
	"github.com/dropDatabas3/crossjohn/internal/config"
	"github.com/dropDatabas3/crossjohn/internal/correlation"
	"github.com/dropDatabas3/crossjohn/internal/directory"
	accountctrl "github.com/dropDatabas3/crossjohn/internal/http/controllers/account"
	callbackctrl "github.com/dropDatabas3/crossjohn/internal/http/controllers/callback"
	healthctrl "github.com/dropDatabas3/crossjohn/internal/http/controllers/health"
	loginctrl "github.com/dropDatabas3/crossjohn/internal/http/controllers/login"
	sessionctrl "github.com/dropDatabas3/crossjohn/internal/http/controllers/session"
	"github.com/dropDatabas3/crossjohn/internal/http/router"
	"github.com/dropDatabas3/crossjohn/internal/http/services/broker"
	"github.com/dropDatabas3/crossjohn/internal/identity"
	"github.com/dropDatabas3/crossjohn/internal/metrics"
	"github.com/dropDatabas3/crossjohn/internal/provider/registry"
	"github.com/dropDatabas3/crossjohn/internal/rate"
	"github.com/dropDatabas3/crossjohn/internal/session"
	"github.com/dropDatabas3/crossjohn/internal/store"
	memstore "github.com/dropDatabas3/crossjohn/internal/store/memory"
	pgstore "github.com/dropDatabas3/crossjohn/internal/store/pg"
	redisstore "github.com/dropDatabas3/crossjohn/internal/store/redis"
	"github.com/dropDatabas3/crossjohn/internal/token"
)

// App agrupa las piezas vivas del broker.
type App struct {
	Config   *config.Config
	KV       store.KV
	Cache    cache.Cache
	Issuer   *token.Issuer
	States   *correlation.Signer
	Registry *registry.Registry
	Mapper   *identity.Mapper
	Sessions *session.Manager
	Handler  http.Handler
}

// New construye la aplicación completa. ctx se usa solo para la conexión
// inicial a postgres.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kv, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c := cache.New(cache.Config{
		Driver:     cfg.Cache.Driver,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.Cache.DefaultTTL,
	})

	issuer, err := token.New(cfg.JWT.Issuer, cfg.JWT.KeyID, cfg.JWT.SigningSeed)
	if err != nil {
		return nil, fmt.Errorf("app: token issuer: %w", err)
	}
	states := &correlation.Signer{Issuer: issuer, Nonces: c, TTL: cfg.JWT.StateTTL}

	var dir identity.Directory
	if cfg.Directory.BaseURL != "" {
		client, err := directory.New(directory.Config{
			BaseURL:     cfg.Directory.BaseURL,
			BearerToken: cfg.Directory.BearerToken,
			Timeout:     cfg.Directory.Timeout,
		})
		if err != nil {
			return nil, err
		}
		dir = client
	}
	mapper := identity.NewMapper(kv, dir)

	reg := registry.New(providerFactories(cfg, mapper, issuer))

	sessions := &session.Manager{
		KV:       kv,
		Registry: reg,
		Identity: mapper,
		Issuer:   issuer,
		States:   states,
		Consumer: states,
		TokenTTL: cfg.JWT.AccessTTL,
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}

	startSvc := broker.NewStartService(broker.StartDeps{Registry: reg, States: states})
	callbackSvc := broker.NewCallbackService(broker.CallbackDeps{Sessions: sessions, States: states})

	handler := router.New(router.Deps{
		Session:  sessionctrl.NewController(sessions),
		Login:    loginctrl.NewController(startSvc),
		Callback: callbackctrl.NewController(callbackSvc),
		Account:  accountctrl.NewController(mapper),
		Health:   healthctrl.NewController(kv),
		Limiter:  buildLimiter(cfg),
	})

	return &App{
		Config:   cfg,
		KV:       kv,
		Cache:    c,
		Issuer:   issuer,
		States:   states,
		Registry: reg,
		Mapper:   mapper,
		Sessions: sessions,
		Handler:  handler,
	}, nil
}

// Close libera las conexiones del store.
func (a *App) Close() error {
	return a.KV.Close()
}

// buildLimiter devuelve nil cuando el rate limiting está deshabilitado. Con
// cache redis el contador vive en redis para que el límite sea global entre
// réplicas; si no, fixed window en memoria.
func buildLimiter(cfg *config.Config) rate.Limiter {
	if !cfg.Rate.Enabled {
		return nil
	}
	if cfg.Cache.Driver == "redis" {
		client := rdb.NewClient(&rdb.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		return rate.NewRedisLimiter(client, "rl:", cfg.Rate.Limit, cfg.Rate.Window)
	}
	return rate.NewMemoryLimiter(cfg.Rate.Limit, cfg.Rate.Window)
}

func buildStore(ctx context.Context, cfg *config.Config) (store.KV, error) {
	switch cfg.Storage.Driver {
	case "redis":
		return redisstore.New(redisstore.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
			Prefix:   cfg.Storage.Redis.Prefix,
		}), nil
	case "postgres":
		return pgstore.New(ctx, cfg.Storage.DSN)
	default:
		return memstore.New(), nil
	}
}
