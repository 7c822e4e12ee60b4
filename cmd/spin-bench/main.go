package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-spin/v1/lock"
	"github.com/mirkobrombin/go-spin/v1/metrics"
	"github.com/mirkobrombin/go-spin/v1/spin"
)

var (
	concurrency = flag.Int("c", 8, "Concurrency")
	iterations  = flag.Int("n", 1000000, "Total critical sections")
	hold        = flag.Int("hold", 0, "Work units performed while holding the lock")
	target      = flag.String("target", "all", "Target: spin, spin-instrumented, sync, lease")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address after the run")
)

func main() {
	flag.Parse()

	reg := metrics.NewRegistry()
	metrics.RegisterLeaseMetrics(reg)

	targets := strings.Split(*target, ",")
	if *target == "all" {
		targets = []string{"spin", "spin-instrumented", "sync", "lease"}
	}

	fmt.Printf("| %-18s | %-12s | %-12s |\n", "Lock", "Ops/sec", "Avg ns/op")
	fmt.Println("|:---|:---|:---|")

	for _, t := range targets {
		runBenchmark(strings.TrimSpace(t), reg)
	}

	if *metricsAddr != "" {
		http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		log.Printf("serving metrics on %s", *metricsAddr)
		log.Fatal(http.ListenAndServe(*metricsAddr, nil))
	}
}

// work keeps the holder busy for n units.
func work(v *uint64, n int) {
	for i := 0; i < n; i++ {
		*v += uint64(i)
	}
	*v++
}

func runBenchmark(name string, reg *prometheus.Registry) {
	var (
		section func() error
		result  func() uint64
	)

	ctx := context.Background()

	switch name {
	case "spin":
		var m spin.Mutex[uint64]
		section = func() error {
			m.With(func(v *uint64) { work(v, *hold) })
			return nil
		}
		result = func() uint64 { return m.IntoInner() }

	case "spin-instrumented":
		var m spin.Mutex[uint64]
		i := spin.Instrument(&m, spin.WithName[uint64]("bench"), spin.WithMetrics[uint64](reg))
		section = func() error {
			i.With(func(v *uint64) { work(v, *hold) })
			return nil
		}
		result = func() uint64 { return m.IntoInner() }

	case "sync":
		var mu sync.Mutex
		var v uint64
		section = func() error {
			mu.Lock()
			work(&v, *hold)
			mu.Unlock()
			return nil
		}
		result = func() uint64 { return v }

	case "lease":
		l := lock.NewInMemory()
		var v uint64
		section = func() error {
			lease, err := l.Acquire(ctx, "bench", 0)
			if err != nil {
				return err
			}
			work(&v, *hold)
			return lease.Release(ctx)
		}
		result = func() uint64 { return v }

	default:
		log.Printf("Unknown target: %s", name)
		return
	}

	chunk := *iterations / *concurrency
	start := time.Now()

	var eg errgroup.Group
	for i := 0; i < *concurrency; i++ {
		eg.Go(func() error {
			for j := 0; j < chunk; j++ {
				if err := section(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		fmt.Printf("| %-18s | %-12s | %-12s |\n", name, "ERROR", "-")
		log.Printf("%s: %v", name, err)
		return
	}
	elapsed := time.Since(start)

	ops := chunk * *concurrency
	if *hold == 0 {
		if got := result(); got != uint64(ops) {
			log.Printf("%s: lost updates, expected %d got %d", name, ops, got)
		}
	}

	throughput := float64(ops) / elapsed.Seconds()
	avgLat := float64(elapsed.Nanoseconds()) / float64(ops)

	fmt.Printf("| %-18s | %-12.0f | %-12.0f |\n", name, throughput, avgLat)
}
