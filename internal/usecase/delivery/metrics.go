package delivery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the delivery pipeline.
var (
	// deliveryAttemptsTotal tracks completed delivery attempts by outcome.
	deliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_attempts_total",
			Help: "Total number of delivery attempts by outcome",
		},
		[]string{"outcome"}, // outcome: success|retry_scheduled|failed|...
	)

	// deliveryDuration tracks how long a single submit round trip takes.
	deliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_submit_duration_seconds",
			Help:    "Platform submit duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30},
		},
	)

	// deliveryRetriesScheduledTotal tracks retries scheduled per error code.
	deliveryRetriesScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_retries_scheduled_total",
			Help: "Total number of retries scheduled by error code",
		},
		[]string{"error_code"},
	)

	// triggerEventsTotal tracks publish-event decisions made by the trigger.
	triggerEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_trigger_events_total",
			Help: "Total number of publish events by trigger decision",
		},
		[]string{"decision"}, // decision: enqueued|inactive|in_flight|already_delivered|exhausted|duplicate|error
	)

	// queueDroppedTotal tracks enqueues rejected because the queue was full.
	queueDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_queue_dropped_total",
			Help: "Total number of deliveries dropped due to a full queue",
		},
	)

	// queueDepth tracks the current in-process queue backlog.
	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_queue_depth",
			Help: "Number of deliveries waiting in the in-process queue",
		},
	)

	// retryQueueTotal tracks records currently in the retrying state.
	retryQueueTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_retry_queue_total",
			Help: "Number of delivery records in the retrying state",
		},
	)

	// retryQueueDue tracks retrying records whose next_retry_at has passed.
	retryQueueDue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_retry_queue_due",
			Help: "Number of retrying delivery records currently due",
		},
	)

	// sweeperRequeuedTotal tracks deliveries re-enqueued by the sweeper.
	sweeperRequeuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_sweeper_requeued_total",
			Help: "Total number of due retries re-enqueued by the sweeper",
		},
	)

	// healthSuccessRate tracks the windowed success rate per window label.
	healthSuccessRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delivery_success_rate",
			Help: "Delivery success rate over the labelled window",
		},
		[]string{"window"}, // window: 1h|24h
	)

	// healthScore tracks the bucketed health score per window.
	// 2=healthy, 1=degraded, 0=critical.
	healthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "delivery_health_score",
			Help: "Bucketed delivery health score (2=healthy, 1=degraded, 0=critical)",
		},
		[]string{"window"},
	)

	// failureAlert is 1 while the failure percentage exceeds the alert threshold.
	failureAlert = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_failure_alert",
			Help: "1 when the delivery failure rate exceeds the alert threshold",
		},
	)

	// janitorPurgedTotal tracks records purged by the retention janitor.
	janitorPurgedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_janitor_purged_total",
			Help: "Total number of delivery records purged by terminal status",
		},
		[]string{"status"}, // status: success|failed
	)
)

// RecordAttempt records a completed delivery attempt with its outcome.
func RecordAttempt(outcome Outcome) {
	deliveryAttemptsTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordSubmitDuration records the duration of one platform submit call.
func RecordSubmitDuration(duration time.Duration) {
	deliveryDuration.Observe(duration.Seconds())
}

// RecordRetryScheduled records a retry scheduled for the given error code.
func RecordRetryScheduled(errorCode string) {
	deliveryRetriesScheduledTotal.WithLabelValues(errorCode).Inc()
}

// RecordTriggerDecision records the decision the trigger made for one event.
func RecordTriggerDecision(decision string) {
	triggerEventsTotal.WithLabelValues(decision).Inc()
}

// RecordQueueDropped records a delivery rejected by a full queue.
func RecordQueueDropped() {
	queueDroppedTotal.Inc()
}

// SetQueueDepth sets the current in-process queue backlog.
func SetQueueDepth(depth float64) {
	queueDepth.Set(depth)
}

// RecordSweeperRequeued adds to the count of retries re-enqueued by the sweeper.
func RecordSweeperRequeued(count float64) {
	sweeperRequeuedTotal.Add(count)
}

// SetRetryQueueDepth publishes the current retry backlog gauges.
func SetRetryQueueDepth(total, due float64) {
	retryQueueTotal.Set(total)
	retryQueueDue.Set(due)
}

// SetWindowHealth publishes the success rate and bucketed score for a window.
func SetWindowHealth(window string, successRate float64, score Score) {
	healthSuccessRate.WithLabelValues(window).Set(successRate)
	healthScore.WithLabelValues(window).Set(score.gaugeValue())
}

// SetFailureAlert raises or clears the failure alert gauge.
func SetFailureAlert(active bool) {
	if active {
		failureAlert.Set(1)
	} else {
		failureAlert.Set(0)
	}
}

// RecordPurged adds to the count of purged records for a terminal status.
func RecordPurged(status string, count float64) {
	janitorPurgedTotal.WithLabelValues(status).Add(count)
}
