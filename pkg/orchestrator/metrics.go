package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics are package-level by convention
var (
	ticketsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ampere_tickets_created_total",
		Help: "Tickets created, by priority.",
	}, []string{"priority"})

	ticketsBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ampere_tickets_blocked_total",
		Help: "Tickets blocked, by classified escalation kind.",
	}, []string{"escalation_kind"})

	ticketsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ampere_tickets_completed_total",
		Help: "Tickets transitioned to DONE.",
	})
)
