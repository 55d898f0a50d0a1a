package metrics

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		chatTurns,
		chatTurnLatencyMs,
		chatDeltas,
		chatTokensIn,
		chatSendsRejected,
	)
}

var (
	chatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Completed chat turns per provider and outcome.",
		},
		[]string{"provider", "success"},
	)

	chatTurnLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_turn_latency_ms",
			Help:    "Full-turn latency distribution in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"provider", "success"},
	)

	chatDeltas = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_content_deltas_total",
			Help: "Content deltas received per provider.",
		},
		[]string{"provider"},
	)

	chatTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_tokens_in",
			Help: "Sum of prompt (question) tokens per provider.",
		},
		[]string{"provider"},
	)

	chatSendsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sends_rejected_total",
			Help: "Sends rejected before any network call, by precondition.",
		},
		[]string{"reason"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func ObserveTurn(provider string, tokensIn, latencyMs int, success bool) {
	ok := strconv.FormatBool(success)
	chatTurns.WithLabelValues(norm(provider), ok).Inc()
	chatTurnLatencyMs.WithLabelValues(norm(provider), ok).Observe(float64(latencyMs))
	chatTokensIn.WithLabelValues(norm(provider)).Add(float64(tokensIn))
}

func IncDeltas(provider string) {
	chatDeltas.WithLabelValues(norm(provider)).Inc()
}

func IncSendRejected(reason string) {
	chatSendsRejected.WithLabelValues(norm(reason)).Inc()
}
