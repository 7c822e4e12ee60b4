package spin

import "sync/atomic"

// Guard is exclusive access to the value of a locked Mutex. It is obtained
// from Lock, TryLock or LockContext and must be released exactly once with
// Release, usually deferred right after acquisition.
//
// Methods other than Release panic once the guard has been released.
type Guard[T any] struct {
	_         noCopy
	m         *Mutex[T]
	released  atomic.Bool
	onRelease func()
}

// Get returns a copy of the guarded value.
func (g *Guard[T]) Get() T {
	return *g.Ptr()
}

// Set replaces the guarded value.
func (g *Guard[T]) Set(v T) {
	*g.Ptr() = v
}

// Ptr returns a pointer to the guarded value. The pointer is only valid until
// the guard is released.
func (g *Guard[T]) Ptr() *T {
	if g.released.Load() {
		panic("spin: use of released Guard")
	}
	return &g.m.data
}

// Update calls fn with a pointer to the guarded value.
func (g *Guard[T]) Update(fn func(v *T)) {
	fn(g.Ptr())
}

// Release unlocks the mutex. Only the first call has an effect.
func (g *Guard[T]) Release() {
	if !g.released.CompareAndSwap(false, true) {
		return
	}
	if g.onRelease != nil {
		g.onRelease()
	}
	g.m.unlock()
}

// Released reports whether Release has been called.
func (g *Guard[T]) Released() bool {
	return g.released.Load()
}
