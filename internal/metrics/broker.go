package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Broker-related Prometheus metrics. Defined in a standalone package to
// avoid import cycles between the session/provider packages and HTTP.

var (
	Redemptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crossjohn_redemptions_total",
		Help: "Redenciones de credenciales por método y variante de resultado",
	}, []string{"method", "outcome"})

	RedemptionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crossjohn_redemption_latency_ms",
		Help:    "Latencia de RedeemToken en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"method"})

	ProviderConstructions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crossjohn_provider_constructions_total",
		Help: "Construcciones de providers (lazy) por método y resultado",
	}, []string{"method", "result"})

	SessionOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crossjohn_session_ops_total",
		Help: "Operaciones de sesión por tipo y resultado",
	}, []string{"op", "result"})
)

// Register registers the broker metrics on the given registry (or default if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{Redemptions, RedemptionLatency, ProviderConstructions, SessionOps} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
