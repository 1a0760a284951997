package web

import (
	"sync"
	"time"
)

// ActionGuard implements a thread safe map to register/unregister in-flight
// job actions, the double-click protection the old browser panel lacked.
type ActionGuard struct {
	active map[string]time.Time
	lock   sync.Mutex
}

// NewActionGuard creates an ActionGuard
func NewActionGuard() *ActionGuard {
	return &ActionGuard{active: make(map[string]time.Time)}
}

// Begin registers the key, fails if the same action is already in flight
func (g *ActionGuard) Begin(key string) bool {
	g.lock.Lock()
	defer g.lock.Unlock()
	if _, found := g.active[key]; found {
		return false
	}
	g.active[key] = time.Now()
	return true
}

// End removes the key from the map. Safe to call multiple times
func (g *ActionGuard) End(key string) {
	g.lock.Lock()
	defer g.lock.Unlock()
	delete(g.active, key)
}
