// Package metrics wires the process-wide Prometheus registry the turnstile
// and the connection dispatcher publish counters to.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry is the process-wide collector registry. The server exposes no
// HTTP surface of its own, so this is exported for components to register
// against and for an operator to scrape via a separate tool if desired.
var Registry = prometheus.NewRegistry()

// ConnectionsAccepted counts every accepted TCP connection, before the
// turnstile decision.
var ConnectionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "tchatator413_connections_accepted_total",
	Help: "Total number of accepted TCP connections.",
})

// ActionsEvaluated counts every action the evaluator processed, labelled by
// verb, regardless of outcome.
var ActionsEvaluated = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "tchatator413_actions_evaluated_total",
	Help: "Total number of actions evaluated, by verb.",
}, []string{"verb"})

func init() {
	Registry.MustRegister(ConnectionsAccepted, ActionsEvaluated)
}
