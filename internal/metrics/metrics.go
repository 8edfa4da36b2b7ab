// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChargesTotal counts checkout attempts by outcome:
	// approved, declined, oversold, gateway_error, insufficient_stock, not_found, invalid, error.
	ChargesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_charges_total",
		Help: "Checkout attempts by outcome",
	}, []string{"outcome"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Provider events by reconciliation outcome",
	}, []string{"outcome"})

	SweptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pending_sweeper_resolved_total",
		Help: "Stale pending transactions handled by the sweeper",
	}, []string{"result"})

	GatewayDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name:       "gateway_client_duration_seconds",
		Help:       "gateway client runtime duration and result",
		MaxAge:     time.Minute,
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"instance_name", "method", "result"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_dropped_total",
		Help: "Domain events not handed to the broker",
	}, []string{"topic"})
)
