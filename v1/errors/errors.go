package errors

import "errors"

var (
	// ErrNotHeld is returned when releasing a lease that already expired or
	// was released.
	ErrNotHeld = errors.New("lock not held")
	// ErrConsumed is the panic value raised when a retired mutex is used.
	ErrConsumed = errors.New("spin: use of consumed Mutex")
)
