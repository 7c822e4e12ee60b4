package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterLeaseMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterLeaseMetrics(reg)
	LeaseAcquiredCounter.Inc()
	LeaseReleasedCounter.Inc()
	LeaseExpiredCounter.Inc()
	LeaseGauge.Set(2)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) < 4 {
		t.Fatalf("expected metrics registered")
	}
}

func TestRegisterLeaseMetricsDuplicatePanics(t *testing.T) {
	reg := NewRegistry()
	RegisterLeaseMetrics(reg)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	RegisterLeaseMetrics(reg)
}
