package segments

import (
	"sync"
	"time"
)

// Registry keeps one Set per session. Sets live in memory only and are
// dropped once their session has been idle for a while.
type Registry struct {
	mu   sync.Mutex
	sets map[string]*entry
	now  func() time.Time
}

type entry struct {
	set  *Set
	used time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sets: make(map[string]*entry), now: time.Now}
}

// For returns the set owned by sessionID, creating it on first use.
func (r *Registry) For(sessionID string) *Set {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sets[sessionID]
	if !ok {
		e = &entry{set: NewSet()}
		r.sets[sessionID] = e
	}
	e.used = r.now()
	return e.set
}

// Expire drops every set not used within idle and returns how many went.
func (r *Registry) Expire(idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-idle)
	dropped := 0
	for id, e := range r.sets {
		if e.used.Before(cutoff) {
			delete(r.sets, id)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of sessions holding a set
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sets)
}
