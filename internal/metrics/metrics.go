// Package metrics exports contract validation results to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShayCichocki/consumer-contracts/internal/contract"
	"github.com/ShayCichocki/consumer-contracts/internal/runner"
)

const namespace = "consumer_contracts"

// Metrics records batch results. It implements runner.Recorder.
type Metrics struct {
	validations *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastFailed  prometheus.Gauge
	lastPassed  prometheus.Gauge
	lastRun     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "Count of contract validations by result.",
			},
			[]string{"consumer", "contract", "result", "kind"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_attempts_total",
				Help:      "Count of requests issued by contract validations, retries included.",
			},
			[]string{"consumer", "contract"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "validation_duration_seconds",
				Help:      "Contract validation latency in seconds, retries included.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"consumer", "contract"},
		),
		lastFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_failed",
			Help:      "Number of failing contracts in the most recent batch.",
		}),
		lastPassed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_passed",
			Help:      "Number of passing contracts in the most recent batch.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_batch_timestamp_seconds",
			Help:      "Unix time the most recent batch started.",
		}),
	}
	for _, c := range []prometheus.Collector{m.validations, m.attempts, m.duration, m.lastFailed, m.lastPassed, m.lastRun} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordResult implements runner.Recorder.
func (m *Metrics) RecordResult(r runner.ValidationResult) {
	consumer, name := r.Contract.Consumer(), r.Contract.Name()
	result, kind := "pass", "none"
	if !r.Passed() {
		result, kind = "fail", string(contract.KindOf(r.Err))
	}
	m.validations.WithLabelValues(consumer, name, result, kind).Inc()
	m.attempts.WithLabelValues(consumer, name).Add(float64(r.Attempts))
	m.duration.WithLabelValues(consumer, name).Observe(r.Duration.Seconds())
}

// RecordBatch implements runner.Recorder.
func (m *Metrics) RecordBatch(b *runner.BatchResult) {
	m.lastFailed.Set(float64(b.TotalFailed))
	m.lastPassed.Set(float64(b.TotalPassed))
	m.lastRun.Set(float64(b.StartedAt.Unix()))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger logr.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

var _ runner.Recorder = (*Metrics)(nil)
