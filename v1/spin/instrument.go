package spin

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-spin/v1/spin")

// Instrumented wraps a Mutex and records Prometheus metrics and OpenTelemetry
// spans for its operations. The wrapped Mutex can still be used directly;
// direct use is simply not recorded.
type Instrumented[T any] struct {
	m    *Mutex[T]
	name string
	reg  prometheus.Registerer

	acquireCounter   prometheus.Counter
	contendedCounter prometheus.Counter
	tryFailCounter   prometheus.Counter
	forceCounter     prometheus.Counter
	spinCounter      prometheus.Counter
	waitHist         prometheus.Histogram
	heldGauge        prometheus.Gauge
	traceEnabled     bool
}

// Option configures an Instrumented mutex.
type Option[T any] func(*Instrumented[T])

// WithName sets the value of the "lock" label attached to every metric and
// span. It defaults to "default".
func WithName[T any](name string) Option[T] {
	return func(i *Instrumented[T]) {
		i.name = name
	}
}

// WithMetrics enables Prometheus metrics collection using the provided registerer.
func WithMetrics[T any](reg prometheus.Registerer) Option[T] {
	return func(i *Instrumented[T]) {
		i.reg = reg
	}
}

// WithTracing enables OpenTelemetry tracing for LockContext.
func WithTracing[T any]() Option[T] {
	return func(i *Instrumented[T]) {
		i.traceEnabled = true
	}
}

// Instrument returns an Instrumented wrapper around m.
func Instrument[T any](m *Mutex[T], opts ...Option[T]) *Instrumented[T] {
	i := &Instrumented[T]{m: m, name: "default"}
	for _, opt := range opts {
		opt(i)
	}
	if i.reg != nil {
		i.registerMetrics()
	}
	return i
}

func (i *Instrumented[T]) registerMetrics() {
	labels := prometheus.Labels{"lock": i.name}
	i.acquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "spin_acquire_total",
		Help:        "Total number of successful lock acquisitions",
		ConstLabels: labels,
	})
	i.contendedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "spin_contended_total",
		Help:        "Total number of acquisitions that found the lock held",
		ConstLabels: labels,
	})
	i.tryFailCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "spin_trylock_failures_total",
		Help:        "Total number of TryLock calls that failed",
		ConstLabels: labels,
	})
	i.forceCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "spin_force_unlock_total",
		Help:        "Total number of forced unlocks",
		ConstLabels: labels,
	})
	i.spinCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "spin_polls_total",
		Help:        "Total number of polling loads spent waiting for the lock",
		ConstLabels: labels,
	})
	i.waitHist = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "spin_wait_seconds",
		Help:        "Time spent acquiring the lock",
		ConstLabels: labels,
		Buckets:     prometheus.ExponentialBuckets(1e-7, 4, 12),
	})
	i.heldGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "spin_held",
		Help:        "Whether the lock is currently held through this wrapper",
		ConstLabels: labels,
	})
	i.reg.MustRegister(i.acquireCounter, i.contendedCounter, i.tryFailCounter,
		i.forceCounter, i.spinCounter, i.waitHist, i.heldGauge)
}

// Mutex returns the wrapped mutex.
func (i *Instrumented[T]) Mutex() *Mutex[T] {
	return i.m
}

// Lock implements Mutex.Lock.
func (i *Instrumented[T]) Lock() *Guard[T] {
	start := time.Now()
	spins, contended := 0, false
	if !i.m.tryLock() {
		contended = true
		spins = i.m.lock()
	}
	i.observe(time.Since(start), spins, contended)
	return i.guard()
}

// TryLock implements Mutex.TryLock.
func (i *Instrumented[T]) TryLock() (*Guard[T], bool) {
	if !i.m.tryLock() {
		if i.tryFailCounter != nil {
			i.tryFailCounter.Inc()
		}
		return nil, false
	}
	i.observe(0, 0, false)
	return i.guard(), true
}

// LockContext implements Mutex.LockContext.
func (i *Instrumented[T]) LockContext(ctx context.Context) (*Guard[T], error) {
	start := time.Now()
	if !i.traceEnabled {
		g, _, err := i.lockContext(ctx, start)
		return g, err
	}

	var span trace.Span
	ctx, span = tracer.Start(ctx, "Spin.LockContext")
	defer span.End()
	g, contended, err := i.lockContext(ctx, start)
	span.SetAttributes(
		attribute.String("spin.lock", i.name),
		attribute.Bool("spin.contended", contended),
		attribute.Int64("spin.wait_us", time.Since(start).Microseconds()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return g, err
}

func (i *Instrumented[T]) lockContext(ctx context.Context, start time.Time) (*Guard[T], bool, error) {
	if i.m.tryLock() {
		i.observe(time.Since(start), 0, false)
		return i.guard(), false, nil
	}
	spins, err := i.m.lockContext(ctx)
	if err != nil {
		if i.spinCounter != nil {
			i.spinCounter.Add(float64(spins))
		}
		return nil, true, err
	}
	i.observe(time.Since(start), spins, true)
	return i.guard(), true, nil
}

// With implements Mutex.With.
func (i *Instrumented[T]) With(fn func(v *T)) {
	g := i.Lock()
	defer g.Release()
	fn(g.Ptr())
}

// ForceUnlock implements Mutex.ForceUnlock.
func (i *Instrumented[T]) ForceUnlock() {
	if i.forceCounter != nil {
		i.forceCounter.Inc()
	}
	if i.heldGauge != nil && i.m.Locked() {
		i.heldGauge.Set(0)
	}
	i.m.ForceUnlock()
}

func (i *Instrumented[T]) observe(wait time.Duration, spins int, contended bool) {
	if i.acquireCounter == nil {
		return
	}
	i.acquireCounter.Inc()
	if contended {
		i.contendedCounter.Inc()
	}
	i.spinCounter.Add(float64(spins))
	i.waitHist.Observe(wait.Seconds())
	i.heldGauge.Set(1)
}

func (i *Instrumented[T]) guard() *Guard[T] {
	g := &Guard[T]{m: i.m}
	if i.heldGauge != nil {
		g.onRelease = func() { i.heldGauge.Set(0) }
	}
	return g
}
