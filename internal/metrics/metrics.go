// Package metrics exposes per-process Prometheus instrumentation. Every
// component owns its own registry so embedded and test instances never
// fight over collector registration.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics bundles the collectors shared across components. Components only
// touch the collectors relevant to them; the rest stay at zero.
type Metrics struct {
	registry *prometheus.Registry

	// Requests counts handled request/reply frames by service and status.
	Requests *prometheus.CounterVec
	// Published counts emitted pub/sub records by kind (publish, message).
	Published *prometheus.CounterVec
	// ReplicasApplied counts peer records ingested from the replica topic.
	ReplicasApplied prometheus.Counter
	// ReplicasSkipped counts self-originated frames dropped by the filter.
	ReplicasSkipped prometheus.Counter
	// Heartbeats counts heartbeat requests sent to the reference service.
	Heartbeats prometheus.Counter
	// Elections counts coordinator changes observed by this process.
	Elections prometheus.Counter
	// LogicalClock mirrors the current Lamport clock value.
	LogicalClock prometheus.Gauge
}

// New builds a metric set for the named component.
func New(component string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"component": component}

	return &Metrics{
		registry: reg,
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "chat_requests_total",
			Help:        "Handled request/reply frames.",
			ConstLabels: labels,
		}, []string{"service", "status"}),
		Published: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "chat_published_total",
			Help:        "Records emitted on the pub/sub fabric.",
			ConstLabels: labels,
		}, []string{"kind"}),
		ReplicasApplied: factory.NewCounter(prometheus.CounterOpts{
			Name:        "chat_replicas_applied_total",
			Help:        "Peer records appended from the replica topic.",
			ConstLabels: labels,
		}),
		ReplicasSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name:        "chat_replicas_skipped_total",
			Help:        "Self-originated replica frames dropped.",
			ConstLabels: labels,
		}),
		Heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Name:        "chat_heartbeats_total",
			Help:        "Heartbeats sent to the reference service.",
			ConstLabels: labels,
		}),
		Elections: factory.NewCounter(prometheus.CounterOpts{
			Name:        "chat_elections_total",
			Help:        "Coordinator changes observed.",
			ConstLabels: labels,
		}),
		LogicalClock: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "chat_logical_clock",
			Help:        "Current Lamport clock value.",
			ConstLabels: labels,
		}),
	}
}

// Serve exposes /metrics on addr until the context is cancelled. It blocks;
// callers run it on its own goroutine. An empty addr disables the endpoint.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics endpoint up", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
