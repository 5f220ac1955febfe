// Package metrics holds the prometheus collectors kiln exposes.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActorsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kiln_actors_live",
			Help: "Number of units currently running in the actor system.",
		},
	)

	BootDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kiln_init_boot_duration_seconds",
			Help:    "Time taken by init from manifest discovery to hook dispatch.",
			Buckets: prometheus.DefBuckets,
		},
	)

	ServicesStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kiln_init_services_started_total",
			Help: "Number of services started by init.",
		},
	)

	SpawnRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiln_spawn_requests_total",
			Help: "Number of spawn requests handled by the spawn service, by result.",
		},
		[]string{"result"},
	)

	StorageRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiln_storage_requests_total",
			Help: "Number of storage requests handled, by kind and result.",
		},
		[]string{"kind", "result"},
	)

	RegistryRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiln_registry_requests_total",
			Help: "Number of requests served by registry units, by kind.",
		},
		[]string{"kind"},
	)

	HookDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kiln_init_hook_dispatch_total",
			Help: "Hook dispatch attempts by hook and outcome.",
		},
		[]string{"hook", "outcome"},
	)
)

// Register adds every kiln collector to reg. Collectors already present on
// reg are left as they are, so Register may be called again for the same
// registry.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		ActorsLive,
		BootDuration,
		ServicesStartedTotal,
		SpawnRequestsTotal,
		StorageRequestsTotal,
		RegistryRequestsTotal,
		HookDispatchTotal,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Serve exposes gatherer on ln at path until ctx is done. The listener is
// closed when Serve returns.
func Serve(ctx context.Context, ln net.Listener, path string, gatherer prometheus.Gatherer) error {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
