package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the relay pipeline collectors.
type Metrics struct {
	Registry *prometheus.Registry

	MessagesReceived  *prometheus.CounterVec
	PublishTotal      *prometheus.CounterVec
	PublishFallbacks  prometheus.Counter
	GroupFlushes      *prometheus.CounterVec
	RetrievalFailures prometheus.Counter
	PublishDuration   prometheus.Histogram
	PendingGroups     prometheus.GaugeFunc
}

// New registers all collectors on a fresh registry. pending, when set,
// backs the pending groups gauge.
func New(pending func() int) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	m := &Metrics{
		Registry: reg,
		MessagesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_received_total",
			Help: "Inbound source messages by intake outcome",
		}, []string{"outcome"}),
		PublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_publish_total",
			Help: "Publish attempts by delivery path and result",
		}, []string{"path", "result"}),
		PublishFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_publish_fallback_total",
			Help: "Albums delivered sequentially after a rejected batch",
		}),
		GroupFlushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_group_flush_total",
			Help: "Album groups flushed by trigger",
		}, []string{"trigger"}),
		RetrievalFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_retrieval_failures_total",
			Help: "Media items dropped because retrieval failed",
		}),
		PublishDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_publish_duration_seconds",
			Help:    "Duration of publish calls including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
	if pending != nil {
		m.PendingGroups = f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "relay_pending_groups",
			Help: "Album groups currently collecting fragments",
		}, func() float64 { return float64(pending()) })
	}
	return m
}

// Received counts one intake outcome.
func (m *Metrics) Received(outcome string) {
	if m == nil {
		return
	}
	m.MessagesReceived.WithLabelValues(outcome).Inc()
}

// Published records a publish call.
func (m *Metrics) Published(path, result string, dropped int, started time.Time) {
	if m == nil {
		return
	}
	if path == "" {
		path = "none"
	}
	m.PublishTotal.WithLabelValues(path, result).Inc()
	m.PublishDuration.Observe(time.Since(started).Seconds())
	if dropped > 0 {
		m.RetrievalFailures.Add(float64(dropped))
	}
	if path == "sequential" {
		m.PublishFallbacks.Inc()
	}
}

// Flushed counts a group flush.
func (m *Metrics) Flushed(trigger string) {
	if m == nil {
		return
	}
	m.GroupFlushes.WithLabelValues(trigger).Inc()
}

// Handler serves the registry in exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
