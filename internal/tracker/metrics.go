package tracker

import "github.com/dcos-net/mesos-tracker/internal/mesosapi"

// MetricsSink receives Tracker observability events. internal/obsmetrics
// implements this against Prometheus collectors; tests and callers that
// don't care about metrics can leave it nil (every call site nil-checks).
type MetricsSink interface {
	EventProcessed(eventType mesosapi.EventType)
	Gauges(agents, frameworks, tasks, waiting, subscribers int)
	FrameDropped()
}
