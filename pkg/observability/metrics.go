package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// State machine metrics
	StateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpsr",
			Subsystem: "fsm",
			Name:      "transitions_total",
			Help:      "Total number of state transitions",
		},
		[]string{"machine", "to"},
	)

	// Behavior metrics
	BehaviorRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpsr",
			Subsystem: "behavior",
			Name:      "runs_total",
			Help:      "Total number of primitive behavior runs by terminal status",
		},
		[]string{"behavior", "status"},
	)

	BehaviorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gpsr",
			Subsystem: "behavior",
			Name:      "duration_seconds",
			Help:      "Primitive behavior run time in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4m
		},
		[]string{"behavior"},
	)

	AttemptsExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpsr",
			Subsystem: "behavior",
			Name:      "attempts_exhausted_total",
			Help:      "Total number of bounded retries that gave up",
		},
		[]string{"step"},
	)

	// Command channel metrics
	CommandsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpsr",
			Subsystem: "command",
			Name:      "sent_total",
			Help:      "Total number of subsystem commands sent",
		},
		[]string{"kind"},
	)

	CommandResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpsr",
			Subsystem: "command",
			Name:      "results_total",
			Help:      "Total number of subsystem command outcomes",
		},
		[]string{"kind", "result"}, // "ok", "failed", "timeout", "busy"
	)

	CommandLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gpsr",
			Subsystem: "command",
			Name:      "latency_seconds",
			Help:      "Time from send to response in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"kind"},
	)

	// Language bridge metrics
	ParseRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpsr",
			Subsystem: "lang",
			Name:      "parse_total",
			Help:      "Total number of language bridge invocations",
		},
		[]string{"result"}, // "ok", "failed"
	)

	// Mission metrics
	MissionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpsr",
			Subsystem: "mission",
			Name:      "runs_total",
			Help:      "Total number of mission runs by terminal status",
		},
		[]string{"status"},
	)

	UnknownPrimitives = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gpsr",
			Subsystem: "mission",
			Name:      "unknown_primitives_total",
			Help:      "Total number of skipped actions with no matching behavior",
		},
		[]string{"primitive"},
	)

	MissionPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gpsr",
			Subsystem: "mission",
			Name:      "paused",
			Help:      "1 while the mission is paused by the control gate",
		},
	)

	// Event stream metrics
	ActiveEventStreamConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "gpsr",
			Subsystem: "event_stream",
			Name:      "connections_active",
			Help:      "Number of active WebSocket event stream connections",
		},
	)

	EventStreamMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gpsr",
			Subsystem: "event_stream",
			Name:      "messages_sent_total",
			Help:      "Total number of messages sent to event stream clients",
		},
	)

	EventStreamBackpressureDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gpsr",
			Subsystem: "event_stream",
			Name:      "backpressure_drops_total",
			Help:      "Total number of events dropped due to slow clients",
		},
	)
)
