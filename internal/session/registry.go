package session

import (
	"sync"

	"github.com/onexdata/stock-portfolio-analysis/internal/observability"
)

// Registry is the process-wide mapping of session id to Controller.
// Concurrent add/remove and concurrent iteration (via Snapshot) are both
// safe; iteration never blocks a concurrent add or remove, since
// Snapshot takes its own copy under a read lock and releases
// immediately, grounded on the teacher's work.Registry.ByPriority()
// copy-on-read pattern.
type Registry struct {
	mu         sync.RWMutex
	controller map[string]*Controller
	metrics    *observability.Metrics
}

// NewRegistry builds an empty Registry. m may be nil to disable metrics
// recording.
func NewRegistry(m *observability.Metrics) *Registry {
	return &Registry{controller: make(map[string]*Controller), metrics: m}
}

// Add registers c under its session id.
func (r *Registry) Add(c *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.controller[c.SessionID()]; !exists && r.metrics != nil {
		r.metrics.ActiveSessions.Inc()
	}
	r.controller[c.SessionID()] = c
}

// Remove drops the session id from the registry, if present.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.controller[sessionID]; exists {
		delete(r.controller, sessionID)
		if r.metrics != nil {
			r.metrics.ActiveSessions.Dec()
		}
	}
}

// Get returns the Controller for sessionID, if registered.
func (r *Registry) Get(sessionID string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controller[sessionID]
	return c, ok
}

// Snapshot returns a stable, independent copy of the currently
// registered controllers, callers may range over the result while
// adds/removes proceed concurrently on the live registry.
func (r *Registry) Snapshot() []*Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Controller, 0, len(r.controller))
	for _, c := range r.controller {
		result = append(result, c)
	}
	return result
}

// Count returns the number of registered controllers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.controller)
}
