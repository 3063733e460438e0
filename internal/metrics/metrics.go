// Package metrics defines the Prometheus collectors for the billing
// service.  Collectors are registered on the default registry at init
// time and exposed by the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStarted counts sessions that successfully entered PAID.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "murph_sessions_started_total",
		Help: "Number of billing sessions that entered the PAID state.",
	})

	// SessionsSettled counts completed settlements by end reason
	// (end, beacon, superseded, reaped).
	SessionsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "murph_sessions_settled_total",
		Help: "Number of billing sessions settled, by end reason.",
	}, []string{"reason"})

	// InsufficientFunds counts rejected hold placements.
	InsufficientFunds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "murph_insufficient_funds_total",
		Help: "Number of hold placements rejected for insufficient balance.",
	})

	// AmountCharged accumulates settled charges in currency units.
	AmountCharged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "murph_amount_charged_total",
		Help: "Total currency charged across settled sessions.",
	})

	// AmountRefunded accumulates refunds of unused hold portions.
	AmountRefunded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "murph_amount_refunded_total",
		Help: "Total currency refunded from unused hold amounts.",
	})
)
