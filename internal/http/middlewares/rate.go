package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	httperrors "github.com/dropDatabas3/crossjohn/internal/http/errors"
	"github.com/dropDatabas3/crossjohn/internal/observability/logger"
	"github.com/dropDatabas3/crossjohn/internal/rate"
)

// ClientIP extrae la IP del cliente, respetando X-Forwarded-For.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// WithRateLimit limita por IP sobre los endpoints de credenciales. Expone
// los headers estándar X-RateLimit-* y Retry-After.
func WithRateLimit(limiter rate.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Allow(r.Context(), ClientIP(r))
			if err != nil {
				// Un limiter caído no bloquea logins; se registra y sigue.
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
				httperrors.WriteError(w, httperrors.New(http.StatusTooManyRequests,
					"RATE_LIMITED", "Demasiadas solicitudes; reintente más tarde."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
