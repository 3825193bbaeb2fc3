// Package cache provee un cache simple de bytes con TTL, usado para nonces
// de correlación (single-use) y login codes de corta vida.
//
// Backends:
//   - Memory (in-process, desarrollo/tests)
//   - Redis (distribuido, producción)
package cache

import "time"

// Cache es la interfaz mínima que consumen los servicios del broker.
type Cache interface {
	// Get obtiene un valor. El segundo retorno indica si la key existe.
	Get(key string) ([]byte, bool)

	// Set guarda un valor con TTL. Si ttl es 0 usa el default del backend.
	Set(key string, value []byte, ttl time.Duration)

	// Delete elimina una key. Borrar una key inexistente no es error.
	Delete(key string)

	// TakeOnce borra y retorna la key en una sola operación atómica: de N
	// llamadas concurrentes con la misma key exactamente una retorna true.
	// Es la primitiva para nonces de un solo uso; la atomicidad es del
	// backend (GETDEL en redis, lock en memoria), no del caller.
	TakeOnce(key string) ([]byte, bool)
}

// Config configuración para crear un cache.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string
	Password   string
	DB         int
	Prefix     string
	DefaultTTL time.Duration
}

// New crea un cache según la configuración.
func New(cfg Config) Cache {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	default:
		return NewMemory(cfg.DefaultTTL)
	}
}
