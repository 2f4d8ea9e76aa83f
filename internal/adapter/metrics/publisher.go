package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/YelzhanWeb/burger-queue/internal/domain"
	"github.com/YelzhanWeb/burger-queue/internal/interfaces"
)

// Publisher records every event in Prometheus and forwards it to next.
type Publisher struct {
	next     interfaces.EventPublisher
	registry *prometheus.Registry

	events      *prometheus.CounterVec
	preparation prometheus.Histogram
	queueSize   prometheus.Gauge
	processing  prometheus.Gauge
	waitSeconds prometheus.Gauge
	avgSeconds  prometheus.Gauge
	ordersToday prometheus.Gauge
	totalOrders prometheus.Gauge
}

// NewPublisher registers the collectors on a private registry. next may be nil.
func NewPublisher(next interfaces.EventPublisher) *Publisher {
	p := &Publisher{
		next:     next,
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "burger_queue_events_total",
			Help: "Scheduler events by kind.",
		}, []string{"event"}),
		preparation: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "burger_queue_preparation_seconds",
			Help:    "Actual preparation time of completed orders.",
			Buckets: prometheus.LinearBuckets(60, 60, 10),
		}),
		queueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "burger_queue_size",
			Help: "Orders waiting in the queue at the last stats refresh.",
		}),
		processing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "burger_queue_processing",
			Help: "Orders in the machine slot at the last stats refresh.",
		}),
		waitSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "burger_queue_estimated_wait_seconds",
			Help: "Estimated wait for a new order.",
		}),
		avgSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "burger_queue_avg_preparation_seconds",
			Help: "Average preparation time over recent completions.",
		}),
		ordersToday: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "burger_queue_orders_today",
			Help: "Orders admitted since local midnight.",
		}),
		totalOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "burger_queue_orders_total",
			Help: "Orders admitted since start.",
		}),
	}

	p.registry.MustRegister(
		p.events,
		p.preparation,
		p.queueSize,
		p.processing,
		p.waitSeconds,
		p.avgSeconds,
		p.ordersToday,
		p.totalOrders,
	)
	for _, kind := range domain.EventKinds {
		p.events.WithLabelValues(string(kind))
	}
	return p
}

func (p *Publisher) Publish(ctx context.Context, event domain.Event) {
	p.events.WithLabelValues(string(event.Kind())).Inc()

	switch e := event.(type) {
	case domain.OrderCompleted:
		p.preparation.Observe(float64(e.PreparationSeconds))
	case domain.StatsUpdated:
		p.observeStats(e.Stats)
	}

	if p.next != nil {
		p.next.Publish(ctx, event)
	}
}

func (p *Publisher) observeStats(stats domain.Stats) {
	p.queueSize.Set(float64(stats.QueueSize))
	p.processing.Set(float64(stats.ProcessingCount))
	p.waitSeconds.Set(float64(stats.EstimatedWaitSeconds))
	p.avgSeconds.Set(stats.AvgPreparationSeconds)
	p.ordersToday.Set(float64(stats.OrdersToday))
	p.totalOrders.Set(float64(stats.TotalOrders))
}

// Handler serves the registry in the Prometheus text format.
func (p *Publisher) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

var _ interfaces.EventPublisher = (*Publisher)(nil)
