package spin

import (
	"context"
	"sync/atomic"

	spinerrors "github.com/mirkobrombin/go-spin/v1/errors"
)

const (
	unlocked uint32 = iota
	locked
	consumed
)

// pollRounds is the number of polling loads LockContext performs between
// context checks.
const pollRounds = 128

// noCopy may be embedded into structs which must not be copied after the
// first use. See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Locker is the acquisition surface shared by Mutex and Instrumented.
type Locker[T any] interface {
	Lock() *Guard[T]
	TryLock() (*Guard[T], bool)
	LockContext(ctx context.Context) (*Guard[T], error)
	With(fn func(v *T))
	ForceUnlock()
}

var (
	_ Locker[struct{}] = (*Mutex[struct{}])(nil)
	_ Locker[struct{}] = (*Instrumented[struct{}])(nil)
)

// Mutex is a spin lock guarding a value of type T.
//
// The zero value is an unlocked Mutex holding the zero T. A Mutex must not be
// copied after first use.
type Mutex[T any] struct {
	_     noCopy
	state atomic.Uint32
	data  T
}

// New returns an unlocked Mutex holding v. It has no side effects and can be
// used to initialize package level variables.
func New[T any](v T) Mutex[T] {
	return Mutex[T]{data: v}
}

// Lock acquires the mutex, spinning until it is available, and returns a
// guard granting exclusive access to the value.
func (m *Mutex[T]) Lock() *Guard[T] {
	m.lock()
	return &Guard[T]{m: m}
}

// lock runs the test-and-test-and-set loop and reports how many polling loads
// were needed before the lock was won.
func (m *Mutex[T]) lock() (spins int) {
	for {
		if m.state.CompareAndSwap(unlocked, locked) {
			return spins
		}
		for {
			s := m.state.Load()
			if s == unlocked {
				break
			}
			if s == consumed {
				panic(spinerrors.ErrConsumed)
			}
			spins++
		}
	}
}

// TryLock attempts to acquire the mutex without spinning. The boolean reports
// whether the returned guard is valid.
func (m *Mutex[T]) TryLock() (*Guard[T], bool) {
	if !m.tryLock() {
		return nil, false
	}
	return &Guard[T]{m: m}, true
}

func (m *Mutex[T]) tryLock() bool {
	if m.state.CompareAndSwap(unlocked, locked) {
		return true
	}
	if m.state.Load() == consumed {
		panic(spinerrors.ErrConsumed)
	}
	return false
}

// LockContext acquires the mutex like Lock but gives up when ctx is done, in
// which case ctx.Err() is returned.
func (m *Mutex[T]) LockContext(ctx context.Context) (*Guard[T], error) {
	if _, err := m.lockContext(ctx); err != nil {
		return nil, err
	}
	return &Guard[T]{m: m}, nil
}

func (m *Mutex[T]) lockContext(ctx context.Context) (spins int, err error) {
	done := ctx.Done()
	for {
		if m.tryLock() {
			return spins, nil
		}
		for i := 0; i < pollRounds && m.state.Load() == locked; i++ {
			spins++
		}
		select {
		case <-done:
			return spins, ctx.Err()
		default:
		}
	}
}

// With locks the mutex, calls fn with a pointer to the value and unlocks the
// mutex when fn returns or panics. The pointer must not be retained after fn
// returns.
func (m *Mutex[T]) With(fn func(v *T)) {
	g := m.Lock()
	defer g.Release()
	fn(&m.data)
}

// TryWith is like With but returns false without calling fn if the mutex is
// already locked.
func (m *Mutex[T]) TryWith(fn func(v *T)) bool {
	g, ok := m.TryLock()
	if !ok {
		return false
	}
	defer g.Release()
	fn(&m.data)
	return true
}

// ForceUnlock releases the mutex without going through a guard.
//
// It is unchecked: if a guard is still in use, two goroutines will believe they
// hold the lock at the same time. Only call it to recover a lock whose holder
// is known to never release it, such as an abandoned guard. ForceUnlock on an
// unlocked or consumed mutex does nothing.
func (m *Mutex[T]) ForceUnlock() {
	m.state.CompareAndSwap(locked, unlocked)
}

// IntoInner retires the mutex and returns the guarded value. It panics if the
// mutex is locked. Any later Lock or TryLock panics with errors.ErrConsumed.
func (m *Mutex[T]) IntoInner() T {
	if !m.state.CompareAndSwap(unlocked, consumed) {
		if m.state.Load() == consumed {
			panic(spinerrors.ErrConsumed)
		}
		panic("spin: IntoInner called on a locked Mutex")
	}
	v := m.data
	var zero T
	m.data = zero
	return v
}

// Locked reports whether the mutex is held at the time of the call. The
// result is stale as soon as it is returned and must not be used for
// synchronization.
func (m *Mutex[T]) Locked() bool {
	return m.state.Load() == locked
}

func (m *Mutex[T]) unlock() {
	m.state.Store(unlocked)
}
