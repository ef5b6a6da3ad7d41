// Package metrics holds the Prometheus collectors for the voice core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MicTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sous_mic_state_transitions_total",
			Help: "Microphone state transitions",
		},
		[]string{"from", "to"},
	)

	RejectedTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sous_mic_rejected_transitions_total",
			Help: "Microphone state transitions refused by the state machine",
		},
		[]string{"from", "to"},
	)

	RecognitionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sous_recognition_errors_total",
			Help: "Recognition errors by code",
		},
		[]string{"code"},
	)

	RecognitionRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sous_recognition_restarts_total",
			Help: "Automatic recognition restarts after a session ended",
		},
	)

	BargeIns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sous_barge_ins_total",
			Help: "Speech output interrupted by a wake phrase",
		},
	)

	SpeechSegments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sous_speech_segments_total",
			Help: "Sentence segments handed to the synthesizer",
		},
	)

	TurnsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sous_turns_dispatched_total",
			Help: "Conversation turns sent to the backend",
		},
		[]string{"source"},
	)

	Responses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sous_responses_total",
			Help: "Classified backend responses by kind",
		},
		[]string{"kind"},
	)

	DispatchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "sous_dispatch_latency_seconds",
			Help: "Backend round trip for a conversation turn",
		},
	)

	TimersStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sous_timers_started_total",
			Help: "Timers started locally, by how they were started",
		},
		[]string{"mode"},
	)

	TimerPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sous_timer_persist_failures_total",
			Help: "Timer start or completion records the backend did not accept",
		},
	)
)
