// Package registry holds the shared tenant → session map. The mutex
// guards map mutation only; it is never held across connection attempts
// or sends, so one tenant's churn cannot block another's reads.
package registry

import (
	"sync"

	"github.com/mundoiahelp-code/sistema-gestion-completo-sub002/pkg/session"
)

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// New returns an empty registry. Instances are independent so tests can
// build isolated registries per case.
func New() *Registry {
	return &Registry{sessions: make(map[string]*session.Session)}
}

func (r *Registry) Get(tenantID string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[tenantID]
	return s, ok
}

func (r *Registry) Put(tenantID string, s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[tenantID] = s
}

func (r *Registry) Remove(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, tenantID)
}

func (r *Registry) List() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
