// Package obsmetrics defines the Prometheus collectors exported by the
// tracker: entity counts, event throughput, reconnects, and dropped frames.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dcos-net/mesos-tracker/internal/mesosapi"
)

// Collector bundles every metric this service exports and implements
// tracker.MetricsSink, so the Tracker actor can report into it without
// depending on Prometheus itself.
type Collector struct {
	connected      prometheus.Gauge
	agents         prometheus.Gauge
	frameworks     prometheus.Gauge
	tasks          prometheus.Gauge
	waiting        prometheus.Gauge
	subscribers    prometheus.Gauge
	eventsTotal    *prometheus.CounterVec
	reconnectTotal prometheus.Counter
	framesDropped  prometheus.Counter
}

// NewCollector constructs a Collector and registers it against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the global
// default registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mesos_tracker",
			Name:      "connected",
			Help:      "1 if the SUBSCRIBE stream is currently live, 0 otherwise.",
		}),
		agents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mesos_tracker",
			Name:      "agents",
			Help:      "Number of known Mesos agents.",
		}),
		frameworks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mesos_tracker",
			Name:      "frameworks",
			Help:      "Number of known Mesos frameworks.",
		}),
		tasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mesos_tracker",
			Name:      "tasks",
			Help:      "Number of tracked non-terminal tasks.",
		}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mesos_tracker",
			Name:      "tasks_waiting",
			Help:      "Number of tasks with an unresolved agent or framework reference.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mesos_tracker",
			Name:      "subscribers",
			Help:      "Number of attached downstream subscribers.",
		}),
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mesos_tracker",
			Name:      "events_processed_total",
			Help:      "Operator API events processed, by type.",
		}, []string{"type"}),
		reconnectTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mesos_tracker",
			Name:      "reconnects_total",
			Help:      "Number of SUBSCRIBE reconnect attempts made.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mesos_tracker",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped for failing to parse as a valid event envelope.",
		}),
	}

	reg.MustRegister(
		c.connected, c.agents, c.frameworks, c.tasks, c.waiting,
		c.subscribers, c.eventsTotal, c.reconnectTotal, c.framesDropped,
	)
	return c
}

func (c *Collector) SetConnected(connected bool) {
	if connected {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
}

func (c *Collector) EventProcessed(eventType mesosapi.EventType) {
	c.eventsTotal.WithLabelValues(string(eventType)).Inc()
}

func (c *Collector) Gauges(agents, frameworks, tasks, waiting, subscribers int) {
	c.agents.Set(float64(agents))
	c.frameworks.Set(float64(frameworks))
	c.tasks.Set(float64(tasks))
	c.waiting.Set(float64(waiting))
	c.subscribers.Set(float64(subscribers))
}

func (c *Collector) FrameDropped() {
	c.framesDropped.Inc()
}

func (c *Collector) Reconnected() {
	c.reconnectTotal.Inc()
}
