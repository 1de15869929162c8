package auth

import (
	"sync"
	"time"
)

// revocationList remembers token ids until their expiry.
type revocationList struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func newRevocationList() *revocationList {
	return &revocationList{entries: make(map[string]time.Time), now: time.Now}
}

func (r *revocationList) add(id string, expires time.Time) {
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[id] = expires
	r.pruneLocked()
}

func (r *revocationList) contains(id string) bool {
	if id == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.entries[id]
	return ok && r.now().Before(exp)
}

func (r *revocationList) pruneLocked() {
	now := r.now()
	for id, exp := range r.entries {
		if !now.Before(exp) {
			delete(r.entries, id)
		}
	}
}
