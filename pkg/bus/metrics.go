package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Process-wide instrumentation registered once
var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ampere_bus_events_published_total",
		Help: "Events accepted and persisted by the bus, by event type.",
	}, []string{"event_type"})

	deliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ampere_bus_events_delivered_total",
		Help: "Event deliveries enqueued to subscribers.",
	})

	handlerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ampere_bus_handler_failures_total",
		Help: "Subscriber handler invocations that returned an error or panicked.",
	})

	subscriberGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ampere_bus_subscribers",
		Help: "Currently registered subscriptions.",
	})
)
