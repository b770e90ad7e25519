// Package metrics exposes Prometheus instrumentation for the orchestration
// engine and the streaming transport.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InvocationsTotal counts orchestration invocations by mode and outcome.
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_invocations_total",
			Help: "Total number of orchestration invocations",
		},
		[]string{"mode", "outcome"},
	)

	// ActiveStreams tracks invocations currently streaming events.
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "parley_active_streams",
			Help: "Number of invocations currently streaming",
		},
	)

	// AgentTurnsTotal counts completed agent turns by agent id.
	AgentTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_agent_turns_total",
			Help: "Total number of completed agent turns",
		},
		[]string{"agent"},
	)

	// TokensTotal accumulates tokens reported by generation backends.
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parley_tokens_total",
			Help: "Total tokens consumed by generation calls",
		},
		[]string{"model"},
	)

	// CreditsDebitedTotal accumulates credits successfully debited.
	CreditsDebitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_credits_debited_total",
			Help: "Total credits debited from user balances",
		},
	)

	// DebitFailuresTotal counts debits that lost the balance race.
	DebitFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "parley_debit_failures_total",
			Help: "Total credit debits rejected for insufficient balance",
		},
	)
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler { return promhttp.Handler() }
