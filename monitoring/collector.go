package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HealthCollector exports per-component health metrics on a private
// prometheus registry.
type HealthCollector struct {
	registry *prometheus.Registry

	statusLevel  *prometheus.GaugeVec
	errorRate    *prometheus.GaugeVec
	cpuUsage     *prometheus.GaugeVec
	memoryUsage  *prometheus.GaugeVec
	throughput   *prometheus.GaugeVec
	responseTime *prometheus.HistogramVec
	checksTotal  *prometheus.CounterVec
}

// NewHealthCollector creates a collector with its own registry.
func NewHealthCollector() *HealthCollector {
	registry := prometheus.NewRegistry()

	c := &HealthCollector{registry: registry}

	c.statusLevel = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "selfheal",
		Subsystem: "health",
		Name:      "status_level",
		Help:      "Current health status level (0=healthy, 1=degraded, 2=critical, 3=failed)",
	}, []string{"component"})

	c.errorRate = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "selfheal",
		Subsystem: "health",
		Name:      "error_rate",
		Help:      "Latest observed error rate (0-1)",
	}, []string{"component"})

	c.cpuUsage = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "selfheal",
		Subsystem: "health",
		Name:      "cpu_usage",
		Help:      "Latest observed CPU usage (0-1)",
	}, []string{"component"})

	c.memoryUsage = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "selfheal",
		Subsystem: "health",
		Name:      "memory_usage",
		Help:      "Latest observed memory usage (0-1)",
	}, []string{"component"})

	c.throughput = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "selfheal",
		Subsystem: "health",
		Name:      "throughput",
		Help:      "Latest observed throughput (requests per second)",
	}, []string{"component"})

	c.responseTime = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "selfheal",
		Subsystem: "health",
		Name:      "response_time_seconds",
		Help:      "Observed component response time in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"component"})

	c.checksTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "selfheal",
		Subsystem: "health",
		Name:      "checks_total",
		Help:      "Total health checks performed per component",
	}, []string{"component"})

	return c
}

// Registry returns the underlying prometheus registry for HTTP exposure.
func (c *HealthCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Observe records a sampled metrics snapshot and its classification.
func (c *HealthCollector) Observe(component string, m HealthMetrics, status HealthStatus) {
	c.checksTotal.WithLabelValues(component).Inc()
	c.statusLevel.WithLabelValues(component).Set(float64(status.Level))
	c.errorRate.WithLabelValues(component).Set(m.ErrorRate)
	c.cpuUsage.WithLabelValues(component).Set(m.CPU)
	c.memoryUsage.WithLabelValues(component).Set(m.Memory)
	c.throughput.WithLabelValues(component).Set(m.Throughput)
	c.responseTime.WithLabelValues(component).Observe(m.ResponseTime.Seconds())
}

// ObserveStatus records a classification that has no metrics sample behind
// it, such as the Critical status after consecutive fetch misses.
func (c *HealthCollector) ObserveStatus(component string, status HealthStatus) {
	c.statusLevel.WithLabelValues(component).Set(float64(status.Level))
}

// Remove drops all series for a component.
func (c *HealthCollector) Remove(component string) {
	labels := prometheus.Labels{"component": component}
	c.statusLevel.Delete(labels)
	c.errorRate.Delete(labels)
	c.cpuUsage.Delete(labels)
	c.memoryUsage.Delete(labels)
	c.throughput.Delete(labels)
	c.responseTime.Delete(labels)
	c.checksTotal.Delete(labels)
}
