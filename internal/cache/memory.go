package cache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type mem struct {
	c *gocache.Cache

	// go-cache no tiene get-and-delete atómico; takeMu serializa TakeOnce.
	takeMu sync.Mutex
}

// NewMemory crea un cache in-process respaldado por go-cache.
func NewMemory(defaultTTL time.Duration) Cache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &mem{c: gocache.New(defaultTTL, time.Minute)}
}

func (m *mem) Get(k string) ([]byte, bool) {
	v, ok := m.c.Get(k)
	if !ok {
		return nil, false
	}
	b, _ := v.([]byte)
	return b, true
}

func (m *mem) Set(k string, v []byte, ttl time.Duration) { m.c.Set(k, v, ttl) }
func (m *mem) Delete(k string)                           { m.c.Delete(k) }

func (m *mem) TakeOnce(k string) ([]byte, bool) {
	m.takeMu.Lock()
	defer m.takeMu.Unlock()
	v, ok := m.Get(k)
	if !ok {
		return nil, false
	}
	m.c.Delete(k)
	return v, true
}
