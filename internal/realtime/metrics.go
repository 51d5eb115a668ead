package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	deliveryOK     = "ok"
	deliveryFailed = "failed"
)

// Metrics - счетчики рассылки и число живых соединений
type Metrics struct {
	deliveries *prometheus.CounterVec
	events     *prometheus.CounterVec
	pruned     prometheus.Counter
}

// NewMetrics регистрирует метрики в reg. registry может быть nil.
func NewMetrics(reg prometheus.Registerer, registry *Registry) *Metrics {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "deliveries_total",
			Help:      "Fan-out deliveries by result.",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "events_published_total",
			Help:      "Events published to group subscribers by type.",
		}, []string{"type"}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "connections_pruned_total",
			Help:      "Connections removed after a failed delivery.",
		}),
	}
	reg.MustRegister(m.deliveries, m.events, m.pruned)

	if registry != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "chat",
				Name:      "live_connections",
				Help:      "Registered websocket connections.",
			}, func() float64 { return float64(registry.Count()) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: "chat",
				Name:      "live_groups",
				Help:      "Groups with at least one live connection.",
			}, func() float64 { return float64(registry.Groups()) }),
		)
	}
	return m
}

func (m *Metrics) observeEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

func (m *Metrics) observeDelivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) observePruned() {
	if m == nil {
		return
	}
	m.pruned.Inc()
}
