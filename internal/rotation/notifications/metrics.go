package notifications

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	droppedTotal prometheus.Counter
	failedTotal  *prometheus.CounterVec

	metricsOnce sync.Once
	metricsMu   sync.RWMutex
)

// InitMetrics registers the notification counters with reg. Only the first
// call has any effect.
func InitMetrics(reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		dropped := prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pacert_notifications_dropped_total",
			Help: "Total number of notification events dropped due to queue overflow",
		})
		failed := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pacert_notifications_failed_total",
			Help: "Total number of notifications a provider failed to deliver",
		}, []string{"provider"})
		reg.MustRegister(dropped, failed)

		metricsMu.Lock()
		droppedTotal = dropped
		failedTotal = failed
		metricsMu.Unlock()
	})
}

// incrementDroppedCounter is safe to call before InitMetrics.
func incrementDroppedCounter() {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if droppedTotal != nil {
		droppedTotal.Inc()
	}
}

func incrementFailedCounter(provider string) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if failedTotal != nil {
		failedTotal.WithLabelValues(provider).Inc()
	}
}
