package lock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	spinerrors "github.com/mirkobrombin/go-spin/v1/errors"
	"github.com/mirkobrombin/go-spin/v1/metrics"
	"github.com/mirkobrombin/go-spin/v1/spin"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-spin/v1/lock")

// Locker hands out leases on named keys.
type Locker interface {
	// TryLock attempts to obtain the lease without waiting. The boolean
	// reports whether the returned lease is valid.
	TryLock(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error)
	// Acquire spins until the lease is obtained or the context is cancelled.
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
}

var _ Locker = (*InMemory)(nil)

// Lease is a held lock on a key.
type Lease struct {
	// Key is the locked key.
	Key string
	// Token identifies this lease.
	Token string
	// Fence is the per-key fencing token. It grows with every acquisition of
	// the key, so a holder whose lease expired carries a smaller value than
	// any later holder.
	Fence uint64

	mu    *spin.Mutex[uint64]
	guard *spin.Guard[uint64]
	timer *time.Timer
	done  atomic.Bool
}

// Release frees the lease. It returns errors.ErrNotHeld if the lease already
// expired or was released.
func (l *Lease) Release(ctx context.Context) error {
	if !l.done.CompareAndSwap(false, true) {
		return spinerrors.ErrNotHeld
	}
	if l.timer != nil {
		l.timer.Stop()
	}
	l.guard.Release()
	metrics.LeaseReleasedCounter.Inc()
	metrics.LeaseGauge.Dec()
	return nil
}

// Held reports whether the lease has neither expired nor been released.
func (l *Lease) Held() bool {
	return !l.done.Load()
}

// expire abandons the guard and force unlocks the key.
func (l *Lease) expire() {
	if !l.done.CompareAndSwap(false, true) {
		return
	}
	l.mu.ForceUnlock()
	metrics.LeaseExpiredCounter.Inc()
	metrics.LeaseGauge.Dec()
}

// InMemory implements Locker with one spin lock per key.
type InMemory struct {
	keys         spin.Mutex[map[string]*spin.Mutex[uint64]]
	traceEnabled bool
}

// Option configures an InMemory locker.
type Option func(*InMemory)

// WithTracing enables OpenTelemetry tracing for Acquire.
func WithTracing() Option {
	return func(l *InMemory) {
		l.traceEnabled = true
	}
}

// NewInMemory returns a new in-memory locker.
func NewInMemory(opts ...Option) *InMemory {
	l := &InMemory{keys: spin.New(make(map[string]*spin.Mutex[uint64]))}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *InMemory) mutex(key string) *spin.Mutex[uint64] {
	g := l.keys.Lock()
	defer g.Release()
	keys := g.Get()
	m, ok := keys[key]
	if !ok {
		m = new(spin.Mutex[uint64])
		keys[key] = m
	}
	return m
}

// TryLock implements Locker.TryLock.
func (l *InMemory) TryLock(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m := l.mutex(key)
	g, ok := m.TryLock()
	if !ok {
		return nil, false, nil
	}
	return grant(key, m, g, ttl), true, nil
}

// Acquire implements Locker.Acquire.
func (l *InMemory) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	var span trace.Span
	if l.traceEnabled {
		ctx, span = tracer.Start(ctx, "Lock.Acquire", trace.WithAttributes(attribute.String("spin.key", key)))
		defer span.End()
	}
	m := l.mutex(key)
	g, err := m.LockContext(ctx)
	if err != nil {
		if l.traceEnabled {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}
	lease := grant(key, m, g, ttl)
	if l.traceEnabled {
		span.SetAttributes(
			attribute.String("spin.lease", lease.Token),
			attribute.Int64("spin.fence", int64(lease.Fence)),
		)
	}
	return lease, nil
}

// Locked reports whether key is currently leased. The answer may be stale by
// the time it is returned.
func (l *InMemory) Locked(key string) bool {
	g := l.keys.Lock()
	m, ok := g.Get()[key]
	g.Release()
	return ok && m.Locked()
}

func grant(key string, m *spin.Mutex[uint64], g *spin.Guard[uint64], ttl time.Duration) *Lease {
	g.Update(func(fence *uint64) { *fence++ })
	lease := &Lease{
		Key:   key,
		Token: uuid.NewString(),
		Fence: g.Get(),
		mu:    m,
		guard: g,
	}
	metrics.LeaseAcquiredCounter.Inc()
	metrics.LeaseGauge.Inc()
	if ttl > 0 {
		lease.timer = time.AfterFunc(ttl, lease.expire)
	}
	return lease
}
