// Package spin provides a busy-wait mutex that guards a single value.
//
// A Mutex never parks the calling goroutine: Lock polls the lock word until it
// wins it. This makes it suitable for very short critical sections only; a
// long critical section burns CPU on every waiting goroutine.
//
// Access to the guarded value goes through a Guard returned by Lock, TryLock
// or LockContext. Release the guard with defer, or use With so the lock is
// released on every exit path, panics included:
//
//	var counter spin.Mutex[int]
//
//	counter.With(func(n *int) { *n++ })
//
//	g := counter.Lock()
//	defer g.Release()
//	*g.Ptr() += 2
//
// A *Mutex may be shared between goroutines. The guarded value is only
// reachable through a live Guard, so it is safe to share the Mutex as long as
// callers do not leak pointers obtained from Ptr past Release. Locks are not
// re-entrant: locking a Mutex twice from the same goroutine spins forever.
package spin
