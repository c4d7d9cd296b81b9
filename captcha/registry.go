// File: registry.go
package captcha

import (
	"sync"
	"time"
)

// ChallengeRegistry bounds how often a stateless challenge id may be
// verified. Any backend implementing these three operations is a drop-in
// replacement (a distributed cache client, for example); the manager never
// depends on a concrete store.
type ChallengeRegistry interface {
	// Register establishes a fresh attempt budget for an issued id.
	Register(id string)
	// ConsumeAttempt atomically spends one attempt and reports the budget
	// remaining before this call. ok is false when no live entry exists:
	// never registered, expired, or exhausted — callers must fail then.
	ConsumeAttempt(id string) (remaining int, ok bool)
	// Invalidate removes the entry and reports whether a live one was
	// removed. Idempotent; the bool gives exactly-once success semantics.
	Invalidate(id string) bool
}

type registryEntry struct {
	remaining int
	issuedAt  int64
}

// InMemoryRegistry is the reference registry: a mutex-guarded map plus a
// timing wheel of one-second buckets that lazily evicts expired entries as
// observed time advances. Safe for arbitrary concurrent use.
type InMemoryRegistry struct {
	mu          sync.Mutex
	entries     map[string]*registryEntry
	maxAttempts int
	ttl         int64 // seconds

	// timing wheel state, guarded by mu
	buckets  [][]string
	pos      int
	lastTick int64

	now func() int64 // injectable clock for tests
}

// NewInMemoryRegistry builds a registry expiring entries after ttl with the
// given per-challenge attempt budget.
func NewInMemoryRegistry(ttl time.Duration, maxAttempts int) *InMemoryRegistry {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	r := &InMemoryRegistry{
		entries:     make(map[string]*registryEntry),
		maxAttempts: maxAttempts,
		ttl:         secs,
		buckets:     make([][]string, secs),
		now:         nowUnix,
	}
	r.lastTick = r.now()
	r.pos = int(r.lastTick % secs)
	return r
}

// advance rotates the wheel up to the current second, evicting entries whose
// scheduled bucket has come due and whose ttl has really elapsed. Must be
// called with mu held.
func (r *InMemoryRegistry) advance(now int64) {
	if now <= r.lastTick {
		return
	}
	steps := now - r.lastTick
	if steps > int64(len(r.buckets)) {
		steps = int64(len(r.buckets))
	}
	for i := int64(0); i < steps; i++ {
		r.pos = (r.pos + 1) % len(r.buckets)
		due := r.buckets[r.pos]
		r.buckets[r.pos] = nil
		for _, id := range due {
			if e, ok := r.entries[id]; ok && now-e.issuedAt >= r.ttl {
				delete(r.entries, id)
			}
		}
	}
	r.lastTick = now
}

func (r *InMemoryRegistry) Register(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.advance(now)
	r.entries[id] = &registryEntry{remaining: r.maxAttempts, issuedAt: now}
	slot := int((now + r.ttl) % int64(len(r.buckets)))
	r.buckets[slot] = append(r.buckets[slot], id)
}

func (r *InMemoryRegistry) ConsumeAttempt(id string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.advance(now)

	e, ok := r.entries[id]
	if !ok {
		return 0, false
	}
	if now-e.issuedAt > r.ttl {
		delete(r.entries, id)
		return 0, false
	}
	if e.remaining <= 0 {
		// exhausted: logically absent, evicted by the wheel at ttl
		return 0, false
	}
	prior := e.remaining
	e.remaining--
	return prior, true
}

func (r *InMemoryRegistry) Invalidate(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance(r.now())
	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}
