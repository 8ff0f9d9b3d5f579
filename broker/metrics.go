package broker

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/antonypamo/ProSavantEngine/metric"
)

const metricsComponent = "fieldrelay_broker"

// Metrics holds Prometheus metrics for the relay broker.
type Metrics struct {
	clientsConnected    prometheus.Gauge
	connectionsTotal    prometheus.Counter
	disconnectionsTotal *prometheus.CounterVec
	messagesRelayed     prometheus.Counter
	relayErrorsTotal    *prometheus.CounterVec
	fanoutDuration      prometheus.Histogram
	fanoutRecipients    prometheus.Histogram
}

// newMetrics creates and registers broker metrics. A nil registry disables
// metrics (nil input = nil feature pattern). Registration goes through the
// registry's duplicate-guarded helpers so a second broker on the same
// registry fails with a returnable error instead of a Prometheus panic.
func newMetrics(registry *metric.MetricsRegistry) (*Metrics, error) {
	if registry == nil {
		return nil, nil
	}

	metrics := &Metrics{
		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fieldrelay",
			Subsystem: "broker",
			Name:      "clients_connected",
			Help:      "Number of currently connected relay peers",
		}),

		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldrelay",
			Subsystem: "broker",
			Name:      "client_connections_total",
			Help:      "Total peer connections accepted (including disconnected)",
		}),

		disconnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldrelay",
			Subsystem: "broker",
			Name:      "client_disconnections_total",
			Help:      "Total peer disconnections",
		}, []string{"disconnect_reason"}),

		messagesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fieldrelay",
			Subsystem: "broker",
			Name:      "messages_relayed_total",
			Help:      "Total messages accepted for fan-out",
		}),

		relayErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldrelay",
			Subsystem: "broker",
			Name:      "errors_total",
			Help:      "Relay broker errors",
		}, []string{"error_type"}),

		fanoutDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fieldrelay",
			Subsystem: "broker",
			Name:      "fanout_duration_seconds",
			Help:      "Time to forward one message to all other peers",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
		}),

		fanoutRecipients: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fieldrelay",
			Subsystem: "broker",
			Name:      "fanout_recipients",
			Help:      "Recipient count distribution per fan-out",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
	}

	if err := registry.RegisterGauge(metricsComponent, "clients_connected", metrics.clientsConnected); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsComponent, "client_connections_total", metrics.connectionsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(metricsComponent, "client_disconnections_total", metrics.disconnectionsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(metricsComponent, "messages_relayed_total", metrics.messagesRelayed); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(metricsComponent, "errors_total", metrics.relayErrorsTotal); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram(metricsComponent, "fanout_duration_seconds", metrics.fanoutDuration); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram(metricsComponent, "fanout_recipients", metrics.fanoutRecipients); err != nil {
		return nil, err
	}

	return metrics, nil
}
