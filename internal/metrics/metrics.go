// Package metrics exposes Prometheus collectors for the orchestrator.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestionRunsTotal        *prometheus.CounterVec
	ingestionRunDuration      prometheus.Histogram
	ingestionFiresSkipped     prometheus.Counter
	schedulerActiveTimers     prometheus.Gauge
	reaperRunsReapedTotal     prometheus.Counter
	webhookDeliveriesTotal    *prometheus.CounterVec
	webhookDeliveryDuration   prometheus.Histogram
	alertPublishFailuresTotal prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		ingestionRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_runs_total",
				Help: "Total number of ingestion runs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		ingestionRunDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingestion_run_duration_seconds",
				Help:    "Histogram of ingestion run durations.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		)

		ingestionFiresSkipped = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingestion_fires_skipped_total",
				Help: "Timer fires skipped because a run for the source was still in flight.",
			},
		)

		schedulerActiveTimers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scheduler_active_timers",
				Help: "Number of sources with a registered timer.",
			},
		)

		reaperRunsReapedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reaper_runs_reaped_total",
				Help: "Stuck runs force-failed by the reaper.",
			},
		)

		webhookDeliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_deliveries_total",
				Help: "Webhook delivery attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		webhookDeliveryDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "webhook_delivery_duration_seconds",
				Help:    "Histogram of webhook delivery latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		alertPublishFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "alert_publish_failures_total",
				Help: "Failures publishing to the alert side channel.",
			},
		)
	})
}

// ObserveRun records a terminal run and its duration.
func ObserveRun(status string, duration time.Duration) {
	if ingestionRunsTotal == nil {
		return
	}
	ingestionRunsTotal.WithLabelValues(status).Inc()
	ingestionRunDuration.Observe(duration.Seconds())
}

// IncFireSkipped counts an overlap-guarded skip.
func IncFireSkipped() {
	if ingestionFiresSkipped != nil {
		ingestionFiresSkipped.Inc()
	}
}

// SetActiveTimers records the current registered timer count.
func SetActiveTimers(n int) {
	if schedulerActiveTimers != nil {
		schedulerActiveTimers.Set(float64(n))
	}
}

// AddReaped counts runs force-failed by the reaper.
func AddReaped(n int) {
	if reaperRunsReapedTotal != nil {
		reaperRunsReapedTotal.Add(float64(n))
	}
}

// ObserveDelivery records one webhook delivery attempt.
func ObserveDelivery(outcome string, duration time.Duration) {
	if webhookDeliveriesTotal == nil {
		return
	}
	webhookDeliveriesTotal.WithLabelValues(outcome).Inc()
	webhookDeliveryDuration.Observe(duration.Seconds())
}

// IncAlertFailure counts a failed alert publish.
func IncAlertFailure() {
	if alertPublishFailuresTotal != nil {
		alertPublishFailuresTotal.Inc()
	}
}
