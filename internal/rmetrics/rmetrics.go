// Package rmetrics replaces the teacher's hand-rolled atomic counters
// (internal/metrics) with prometheus client_golang collectors, exposed over
// an HTTP /metrics endpoint (spec.md §6's observability note).
package rmetrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the counters/gauges the dispatcher and workers update.
type Metrics struct {
	BytesSent        prometheus.Counter
	BytesReceived    prometheus.Counter
	SegmentsSent     prometheus.Counter
	SegmentsReceived prometheus.Counter
	Retransmissions  prometheus.Counter
	ActiveTransfers  prometheus.Gauge
	CwndCurrent      prometheus.Gauge

	registry *prometheus.Registry
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rdft_bytes_sent_total",
			Help: "Total bytes sent across all transfers.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rdft_bytes_received_total",
			Help: "Total bytes received across all transfers.",
		}),
		SegmentsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rdft_segments_sent_total",
			Help: "Total Segment packets sent.",
		}),
		SegmentsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rdft_segments_received_total",
			Help: "Total Segment packets received.",
		}),
		Retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rdft_retransmissions_total",
			Help: "Total download refresh cycles that ended with unacknowledged segments and shrank the congestion window.",
		}),
		ActiveTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rdft_active_transfers",
			Help: "Number of download/list transfers currently being streamed.",
		}),
		CwndCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rdft_cwnd_current",
			Help: "Most recently observed congestion window size.",
		}),
		registry: reg,
	}
	reg.MustRegister(m.BytesSent, m.BytesReceived, m.SegmentsSent, m.SegmentsReceived,
		m.Retransmissions, m.ActiveTransfers, m.CwndCurrent)
	return m
}

// Serve starts an HTTP server exposing /metrics at addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
