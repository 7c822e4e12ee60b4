package spin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInstrumentedMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(0)
	i := Instrument(&m, WithName[int]("counter"), WithMetrics[int](reg))

	g := i.Lock()
	if v := testutil.ToFloat64(i.heldGauge); v != 1 {
		t.Fatalf("expected held gauge 1, got %v", v)
	}
	if _, ok := i.TryLock(); ok {
		t.Fatal("trylock succeeded while held")
	}
	g.Release()
	if v := testutil.ToFloat64(i.heldGauge); v != 0 {
		t.Fatalf("expected held gauge 0, got %v", v)
	}
	i.With(func(v *int) { *v++ })

	if v := testutil.ToFloat64(i.acquireCounter); v != 2 {
		t.Fatalf("expected 2 acquisitions, got %v", v)
	}
	if v := testutil.ToFloat64(i.tryFailCounter); v != 1 {
		t.Fatalf("expected 1 trylock failure, got %v", v)
	}
	c, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if c != 7 {
		t.Fatalf("expected 7 metrics registered, got %d", c)
	}
}

func TestInstrumentedContention(t *testing.T) {
	reg := prometheus.NewRegistry()
	var m Mutex[int]
	i := Instrument(&m, WithMetrics[int](reg))

	g := i.Lock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		g2 := i.Lock()
		g2.Release()
	}()
	time.Sleep(5 * time.Millisecond)
	g.Release()
	<-done

	if v := testutil.ToFloat64(i.contendedCounter); v != 1 {
		t.Fatalf("expected 1 contended acquisition, got %v", v)
	}
	if v := testutil.ToFloat64(i.spinCounter); v == 0 {
		t.Fatal("expected polling loads to be recorded")
	}
}

func TestInstrumentedForceUnlock(t *testing.T) {
	reg := prometheus.NewRegistry()
	var m Mutex[int]
	i := Instrument(&m, WithMetrics[int](reg))

	_ = i.Lock()
	i.ForceUnlock()
	if m.Locked() {
		t.Fatal("expected unlocked after ForceUnlock")
	}
	if v := testutil.ToFloat64(i.forceCounter); v != 1 {
		t.Fatalf("expected 1 forced unlock, got %v", v)
	}
	if v := testutil.ToFloat64(i.heldGauge); v != 0 {
		t.Fatalf("expected held gauge 0, got %v", v)
	}
}

func TestInstrumentedDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	var a, b Mutex[int]
	Instrument(&a, WithMetrics[int](reg))
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Instrument(&b, WithMetrics[int](reg))
}

func TestInstrumentedWithoutOptions(t *testing.T) {
	var m Mutex[int]
	i := Instrument(&m)
	i.With(func(v *int) { *v = 3 })
	g, err := i.LockContext(context.Background())
	if err != nil {
		t.Fatalf("lockcontext: %v", err)
	}
	if g.Get() != 3 {
		t.Fatalf("expected 3, got %d", g.Get())
	}
	g.Release()
	if i.Mutex() != &m {
		t.Fatal("Mutex returned a different mutex")
	}
}

func TestInstrumentedTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	otel.SetTracerProvider(tp)

	var m Mutex[int]
	i := Instrument(&m, WithName[int]("traced"), WithTracing[int]())

	g, err := i.LockContext(context.Background())
	if err != nil {
		t.Fatalf("lockcontext: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, err := i.LockContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	g.Release()

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	for _, s := range spans {
		if s.Name() != "Spin.LockContext" {
			t.Fatalf("unexpected span %q", s.Name())
		}
	}
	failed := spans[1]
	if len(failed.Events()) == 0 {
		t.Fatal("expected error event on failed acquisition")
	}
	var contended bool
	for _, kv := range failed.Attributes() {
		if kv.Key == "spin.contended" {
			contended = kv.Value.AsBool()
		}
	}
	if !contended {
		t.Fatal("expected contended attribute on failed acquisition")
	}
}
