package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// dispatchTurns counts conversation turns by outcome
	// (ok, session_unavailable, remote_error, timeout, run_failed, error).
	dispatchTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_turns_total",
			Help: "Total number of conversation turns by outcome.",
		},
		[]string{"outcome"},
	)

	dispatchLat = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_turn_duration_seconds",
			Help:    "Wall time of a conversation turn in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
	)

	// toolCalls counts executed tool calls by declared function and result
	// kind. Unknown function names are collapsed into "unknown".
	toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tool_calls_total",
			Help: "Total number of agent tool calls executed.",
		},
		[]string{"function", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(dispatchTurns, dispatchLat, toolCalls)
}
