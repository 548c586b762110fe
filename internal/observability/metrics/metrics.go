package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "mobbi_"

	resultSuccess  = "success"
	resultError    = "error"
	resultRejected = "rejected"
	resultConflict = "conflict"
)

var (
	registerOnce sync.Once

	allocationTotal     *prometheus.CounterVec
	allocationLatency   *prometheus.HistogramVec
	allocationConflicts prometheus.Counter
	malformedRecords    prometheus.Counter

	deactivationTotal   *prometheus.CounterVec
	deactivationLatency *prometheus.HistogramVec
	localDeleteFailures prometheus.Counter

	deviceReleaseSteps   *prometheus.CounterVec
	deviceReleaseLatency *prometheus.HistogramVec
)

// Init registers service metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		allocationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "allocation_total",
				Help: "Total allocation attempts by result",
			},
			[]string{"result"},
		)
		allocationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "allocation_latency_seconds",
				Help:    "Allocation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		allocationConflicts = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "allocation_conflicts_total",
				Help: "Allocation commits rejected by the area version guard",
			},
		)
		malformedRecords = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "budget_malformed_records_total",
				Help: "Stored allocations skipped during budget computation",
			},
		)

		deactivationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "deactivation_total",
				Help: "Total partner deactivations by result",
			},
			[]string{"result"},
		)
		deactivationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "deactivation_latency_seconds",
				Help:    "Partner deactivation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		localDeleteFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "local_deletion_failures_total",
				Help: "Deletions that stopped after devices were released",
			},
		)

		deviceReleaseSteps = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_release_steps_total",
				Help: "Device release calls by step and result",
			},
			[]string{"step", "result"},
		)
		deviceReleaseLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "device_release_latency_seconds",
				Help:    "Device release call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"step"},
		)

		prometheus.MustRegister(
			allocationTotal,
			allocationLatency,
			allocationConflicts,
			malformedRecords,
			deactivationTotal,
			deactivationLatency,
			localDeleteFailures,
			deviceReleaseSteps,
			deviceReleaseLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveAllocation records allocation duration and result.
func ObserveAllocation(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if allocationTotal != nil {
		allocationTotal.WithLabelValues(result).Inc()
	}
	if allocationLatency != nil {
		allocationLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncAllocationConflict increments the version-guard conflict counter.
func IncAllocationConflict() {
	if allocationConflicts != nil {
		allocationConflicts.Inc()
	}
}

// AddMalformedRecords increments the malformed allocation counter by count.
func AddMalformedRecords(count int) {
	if count <= 0 {
		return
	}
	if malformedRecords != nil {
		malformedRecords.Add(float64(count))
	}
}

// ObserveDeactivation records deactivation duration and result.
func ObserveDeactivation(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if deactivationTotal != nil {
		deactivationTotal.WithLabelValues(result).Inc()
	}
	if deactivationLatency != nil {
		deactivationLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncLocalDeletionFailure increments the inconsistent-deletion counter.
func IncLocalDeletionFailure() {
	if localDeleteFailures != nil {
		localDeleteFailures.Inc()
	}
}

// ObserveDeviceRelease records one external release call.
func ObserveDeviceRelease(step, result string, duration time.Duration) {
	if step == "" {
		step = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if deviceReleaseSteps != nil {
		deviceReleaseSteps.WithLabelValues(step, result).Inc()
	}
	if deviceReleaseLatency != nil {
		deviceReleaseLatency.WithLabelValues(step).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultRejected = resultRejected
	ResultConflict = resultConflict
)
