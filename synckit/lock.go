package synckit

import (
	"errors"
	"sync"
)

// ErrSessionActive is returned when a container already has an open session.
var ErrSessionActive = errors.New("a synchronization session is already active for this container")

// LockRegistry hands out exclusive per-container locks. Acquisition never
// blocks: a held lock is reported as ErrSessionActive.
type LockRegistry struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{held: make(map[string]struct{})}
}

// TryLock acquires the lock for key. The returned release function is safe
// to call more than once.
func (r *LockRegistry) TryLock(key string) (release func(), err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.held[key]; busy {
		return nil, ErrSessionActive
	}
	r.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.held, key)
			r.mu.Unlock()
		})
	}, nil
}

// Held reports whether key is currently locked.
func (r *LockRegistry) Held(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.held[key]
	return busy
}
