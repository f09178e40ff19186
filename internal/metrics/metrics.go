// Package metrics exposes Prometheus instrumentation for the cascade engine
// and the notification dispatcher.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects shopfloor metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	// Cascade
	cascadeOps       *prometheus.CounterVec
	cascadeDuration  *prometheus.HistogramVec
	cascadeConflicts *prometheus.CounterVec

	// Notifications
	notifyQueued    *prometheus.CounterVec
	notifyDropped   *prometheus.CounterVec
	notifyDelivered *prometheus.CounterVec
	notifyAttempts  *prometheus.HistogramVec
}

// New creates a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		cascadeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopfloor_cascade_operations_total",
			Help: "Cascade operations by operation and result.",
		}, []string{"op", "result"}),
		cascadeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shopfloor_cascade_duration_seconds",
			Help:    "Duration of cascade operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		cascadeConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopfloor_cascade_conflicts_total",
			Help: "Compare-and-set conflicts retried by the cascade, by entity.",
		}, []string{"entity"}),
		notifyQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopfloor_notifications_queued_total",
			Help: "Notifications accepted by the dispatcher.",
		}, []string{"kind"}),
		notifyDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopfloor_notifications_dropped_total",
			Help: "Notifications rejected because the queue was full.",
		}, []string{"kind"}),
		notifyDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shopfloor_notifications_delivered_total",
			Help: "Notification deliveries by sink and result.",
		}, []string{"kind", "sink", "result"}),
		notifyAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shopfloor_notification_attempts",
			Help:    "Attempts needed per notification delivery.",
			Buckets: []float64{1, 2, 3, 5, 8},
		}, []string{"sink"}),
	}

	registry.MustRegister(r.cascadeOps)
	registry.MustRegister(r.cascadeDuration)
	registry.MustRegister(r.cascadeConflicts)
	registry.MustRegister(r.notifyQueued)
	registry.MustRegister(r.notifyDropped)
	registry.MustRegister(r.notifyDelivered)
	registry.MustRegister(r.notifyAttempts)

	return r
}

// Registry returns the Prometheus registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// CascadeOperation records one finished cascade operation.
func (r *Recorder) CascadeOperation(op, result string, d time.Duration) {
	r.cascadeOps.WithLabelValues(op, result).Inc()
	r.cascadeDuration.WithLabelValues(op).Observe(d.Seconds())
}

// CascadeConflict records a compare-and-set conflict on entity.
func (r *Recorder) CascadeConflict(entity string) {
	r.cascadeConflicts.WithLabelValues(entity).Inc()
}

// NotificationQueued implements notify.Recorder.
func (r *Recorder) NotificationQueued(kind string) {
	r.notifyQueued.WithLabelValues(kind).Inc()
}

// NotificationDropped implements notify.Recorder.
func (r *Recorder) NotificationDropped(kind string) {
	r.notifyDropped.WithLabelValues(kind).Inc()
}

// NotificationDelivered implements notify.Recorder.
func (r *Recorder) NotificationDelivered(kind, sink string, attempts int, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	r.notifyDelivered.WithLabelValues(kind, sink, result).Inc()
	if attempts > 0 {
		r.notifyAttempts.WithLabelValues(sink).Observe(float64(attempts))
	}
}

