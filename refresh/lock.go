package refresh

import (
	"sync"

	"github.com/bizvista/review-engine/review"
)

// Key identifies one refresh scope.
type Key struct {
	BusinessID review.BusinessID
	Period     review.Period
}

func (k Key) String() string { return string(k.BusinessID) + "/" + string(k.Period) }

// KeyedLocker grants at most one holder per key. It never blocks: a caller
// that cannot take the lock is told so immediately.
type KeyedLocker[K comparable] struct {
	mu   sync.Mutex
	held map[K]struct{}
}

// NewKeyedLocker creates an empty locker.
func NewKeyedLocker[K comparable]() *KeyedLocker[K] {
	return &KeyedLocker[K]{held: make(map[K]struct{})}
}

// TryLock takes the lock for k. When ok is false the lock is held by
// someone else and release is nil. Calling release more than once is safe.
func (l *KeyedLocker[K]) TryLock(k K) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[k]; busy {
		return nil, false
	}
	l.held[k] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, k)
			l.mu.Unlock()
		})
	}, true
}

// Held reports whether k is currently locked.
func (l *KeyedLocker[K]) Held(k K) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[k]
	return ok
}
