// Package metrics exposes posting counters on a private Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 发布相关指标。nil *Metrics 可以安全调用，不记录任何数据
type Metrics struct {
	registry          *prometheus.Registry
	attemptsTotal     *prometheus.CounterVec
	segmentsProduced  prometheus.Counter
	segmentsDropped   prometheus.Counter
	publishesTotal    *prometheus.CounterVec
	publishRetries    prometheus.Counter
	consecutiveErrors prometheus.Gauge
	totalPosts        prometheus.Gauge
}

// New 创建并注册指标
func New() *Metrics {
	registry := prometheus.NewRegistry()

	attemptsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reels_attempts_total",
		Help: "Posting attempts by outcome",
	}, []string{"outcome"})
	segmentsProduced := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reels_segments_produced_total",
		Help: "Segments rendered and validated",
	})
	segmentsDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reels_segments_dropped_total",
		Help: "Segments dropped because rendering failed or the output was too long",
	})
	publishesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reels_publishes_total",
		Help: "Segment publishes by result",
	}, []string{"result"})
	publishRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reels_publish_retries_total",
		Help: "Publish retries after a failed try",
	})
	consecutiveErrors := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reels_consecutive_errors",
		Help: "Consecutive failed attempts as persisted",
	})
	totalPosts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reels_total_posts",
		Help: "Successful attempts as persisted",
	})

	registry.MustRegister(
		attemptsTotal,
		segmentsProduced,
		segmentsDropped,
		publishesTotal,
		publishRetries,
		consecutiveErrors,
		totalPosts,
	)

	return &Metrics{
		registry:          registry,
		attemptsTotal:     attemptsTotal,
		segmentsProduced:  segmentsProduced,
		segmentsDropped:   segmentsDropped,
		publishesTotal:    publishesTotal,
		publishRetries:    publishRetries,
		consecutiveErrors: consecutiveErrors,
		totalPosts:        totalPosts,
	}
}

// ObserveAttempt counts one finished attempt.
func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(outcome).Inc()
}

// IncSegmentsProduced counts a rendered segment.
func (m *Metrics) IncSegmentsProduced() {
	if m == nil {
		return
	}
	m.segmentsProduced.Inc()
}

// IncSegmentsDropped counts a discarded segment.
func (m *Metrics) IncSegmentsDropped() {
	if m == nil {
		return
	}
	m.segmentsDropped.Inc()
}

// ObservePublish counts a segment publish, result is "success" or "failure".
func (m *Metrics) ObservePublish(result string) {
	if m == nil {
		return
	}
	m.publishesTotal.WithLabelValues(result).Inc()
}

// IncPublishRetries counts one retry.
func (m *Metrics) IncPublishRetries() {
	if m == nil {
		return
	}
	m.publishRetries.Inc()
}

// SetState mirrors the persisted counters.
func (m *Metrics) SetState(consecutiveErrors, totalPosts int) {
	if m == nil {
		return
	}
	m.consecutiveErrors.Set(float64(consecutiveErrors))
	m.totalPosts.Set(float64(totalPosts))
}

// Handler returns an http.Handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile 以 node exporter textfile 格式写出指标
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrap(err, "failed to write metrics textfile")
	}
	return nil
}
