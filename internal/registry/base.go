package registry

import (
	"sync"

	"github.com/papapumpkin/tptmodel/internal/apierr"
)

// Base is embedded by every registered entity. Its lock serializes
// operations on the entity and orders them against disposal.
type Base struct {
	mu       sync.RWMutex
	id       ID
	disposed bool
}

func (b *Base) base() *Base { return b }

// ID returns the entity's identifier, or the zero ID before registration.
func (b *Base) ID() ID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id
}

// Disposed reports whether the entity has been disposed.
func (b *Base) Disposed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.disposed
}

// Acquire takes the entity's exclusive lock for a mutating operation named
// op. The returned release func must be called exactly once. It fails with
// ErrDisposed, holding no lock, once the entity is disposed.
func (b *Base) Acquire(op string) (release func(), err error) {
	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return nil, apierr.Disposed("%s: %s", op, b.id)
	}
	return b.mu.Unlock, nil
}

// AcquireRead is Acquire for read-only operations; readers run concurrently.
func (b *Base) AcquireRead(op string) (release func(), err error) {
	b.mu.RLock()
	if b.disposed {
		b.mu.RUnlock()
		return nil, apierr.Disposed("%s: %s", op, b.id)
	}
	return b.mu.RUnlock, nil
}
