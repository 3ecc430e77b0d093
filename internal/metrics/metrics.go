// Package metrics exposes Prometheus counters for the relay pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesTotal counts inbound messages by outcome: "answered", "blocked",
	// "muted", "too_long", "failed", "empty".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_total",
		Help: "Total number of inbound messages by outcome",
	}, []string{"outcome"})

	ViolationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_violations_total",
		Help: "Blocked messages by moderation source",
	}, []string{"source"}) // source = "local", "remote"

	MutesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_mutes_total",
		Help: "Users muted after reaching the violation threshold",
	})

	UnmutesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_unmutes_total",
		Help: "Mutes lifted by the unlock word",
	})

	// RemoteCallSeconds records latency of remote calls: "generate",
	// "paraphrase", "moderation".
	RemoteCallSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_remote_call_seconds",
		Help:    "Latency of remote model calls in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 30},
	}, []string{"call"})

	RemediationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_remediation_total",
		Help: "Paraphrase sessions by action",
	}, []string{"action"}) // action = "offered", "accepted", "rejected", "missing", "foreign"
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		ViolationsTotal,
		MutesTotal,
		UnmutesTotal,
		RemoteCallSeconds,
		RemediationTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
