package statestore

import (
	"sync"
	"time"

	"github.com/smallbiznis/google-connect/internal/domain/oauth"
)

// Registry tracks pending OAuth state tokens for the authorize/callback
// round trip. Entries live only in process memory, so a restart invalidates
// every in-flight login. Each token is consumable exactly once.
type Registry struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	pending map[string]time.Time
}

// New constructs a registry with the given TTL. A nil clock defaults to
// time.Now; tests inject a fake.
func New(ttl time.Duration, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		ttl:     ttl,
		now:     now,
		pending: make(map[string]time.Time),
	}
}

// Remember inserts a state token with expiry now+TTL, sweeping already
// expired entries first.
func (r *Registry) Remember(state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweepLocked(now)
	r.pending[state] = now.Add(r.ttl)
}

// Consume removes and validates a state token. It returns
// oauth.ErrStateNotFound when the token never existed or was already used,
// and oauth.ErrStateExpired when it was found past its TTL (the entry is
// deleted either way once seen).
func (r *Registry) Consume(state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()

	expiry, ok := r.pending[state]
	if ok {
		delete(r.pending, state)
	}
	r.sweepLocked(now)
	if !ok {
		return oauth.ErrStateNotFound
	}
	if now.After(expiry) {
		return oauth.ErrStateExpired
	}
	return nil
}

// Len reports the number of pending entries, expired ones included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry) sweepLocked(now time.Time) {
	for state, expiry := range r.pending {
		if now.After(expiry) {
			delete(r.pending, state)
		}
	}
}
