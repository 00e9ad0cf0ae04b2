// Package metrics exposes the keeper's Prometheus instrumentation:
// reconcile cycle timing, monitor call latency, the current FSM role,
// and partition-detection events.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pg_autoctl_reconcile_duration_seconds",
			Help:    "Time taken for one reconcile tick, in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pg_autoctl_reconcile_cycles_total",
			Help: "Total number of reconcile ticks completed",
		},
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pg_autoctl_transitions_total",
			Help: "Total number of FSM transitions attempted, by result",
		},
		[]string{"from", "to", "result"},
	)

	MonitorCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pg_autoctl_monitor_call_duration_seconds",
			Help:    "Monitor RPC latency in seconds, by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	MonitorUnreachableTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pg_autoctl_monitor_unreachable_total",
			Help: "Total number of ticks where the monitor could not be reached",
		},
	)

	PartitionDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pg_autoctl_partition_detected_total",
			Help: "Total number of times the partition detector forced DEMOTE_TIMEOUT",
		},
	)

	CurrentRole = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pg_autoctl_current_role",
			Help: "1 for the node state currently held, labeled by state name",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		TransitionsTotal,
		MonitorCallDuration,
		MonitorUnreachableTotal,
		PartitionDetectedTotal,
		CurrentRole,
	)
}

// Handler returns the Prometheus HTTP handler, mounted by StatusServer
// on /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// allNodeStates lists every label CurrentRole can carry, so SetCurrentRole
// can zero the rest out when the role changes.
var allNodeStates = []string{
	"init", "single", "wait_primary", "primary", "wait_standby",
	"catchingup", "secondary", "maintenance", "draining", "demoted",
	"demote_timeout", "stop_replication", "prep_promotion", "standby_promoted",
}

// SetCurrentRole sets the gauge for role to 1 and every other known
// state to 0, so the series reads as a single active value over time.
func SetCurrentRole(role string) {
	for _, s := range allNodeStates {
		if s == role {
			CurrentRole.WithLabelValues(s).Set(1)
		} else {
			CurrentRole.WithLabelValues(s).Set(0)
		}
	}
}
