package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEmittedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_events_emitted_total",
			Help: "Number of cross-module events accepted by emit.",
		},
		[]string{"event_type", "source_module"},
	)

	EventsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_events_processed_total",
			Help: "Number of events fully processed by the rule engine.",
		},
		[]string{"event_type"},
	)

	RulesMatchedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_rules_matched_total",
			Help: "Number of rule matches during event processing.",
		},
		[]string{"source_module"},
	)

	ActionsDispatchedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_actions_dispatched_total",
			Help: "Number of rule actions executed, by outcome.",
		},
		[]string{"target_module", "status"},
	)

	DispatchDurationHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "integration_dispatch_duration_seconds",
			Help:    "Latency of dispatches to external module handlers.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target_module"},
	)

	ContactsMergedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "integration_contacts_merged_total",
			Help: "Number of unified contact merges (upsert merges included).",
		},
	)

	SyncCyclesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "integration_sync_cycles_total",
			Help: "Number of completed sync cycles, by outcome.",
		},
		[]string{"module", "outcome"},
	)

	LiveFeedClientsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "integration_live_feed_clients",
			Help: "Number of connected live event feed WebSocket clients.",
		},
	)
)

// IncrementEventsEmitted increments the emitted events counter.
func IncrementEventsEmitted(eventType, sourceModule string) {
	EventsEmittedCounter.WithLabelValues(eventType, sourceModule).Inc()
}

// IncrementEventsProcessed increments the processed events counter.
func IncrementEventsProcessed(eventType string) {
	EventsProcessedCounter.WithLabelValues(eventType).Inc()
}

// IncrementRulesMatched increments the matched rules counter.
func IncrementRulesMatched(sourceModule string) {
	RulesMatchedCounter.WithLabelValues(sourceModule).Inc()
}

// IncrementActionsDispatched increments the dispatched actions counter.
func IncrementActionsDispatched(targetModule, status string) {
	ActionsDispatchedCounter.WithLabelValues(targetModule, status).Inc()
}

// ObserveDispatchDuration records one dispatch latency sample.
func ObserveDispatchDuration(targetModule string, seconds float64) {
	DispatchDurationHistogram.WithLabelValues(targetModule).Observe(seconds)
}

// IncrementContactsMerged increments the contact merge counter.
func IncrementContactsMerged() {
	ContactsMergedCounter.Inc()
}

// IncrementSyncCycles increments the sync cycle counter.
func IncrementSyncCycles(module, outcome string) {
	SyncCyclesCounter.WithLabelValues(module, outcome).Inc()
}

// IncrementLiveFeedClients increments the live feed clients gauge.
func IncrementLiveFeedClients() {
	LiveFeedClientsGauge.Inc()
}

// DecrementLiveFeedClients decrements the live feed clients gauge.
func DecrementLiveFeedClients() {
	LiveFeedClientsGauge.Dec()
}
