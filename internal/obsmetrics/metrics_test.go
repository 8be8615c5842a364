package obsmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dcos-net/mesos-tracker/internal/mesosapi"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCollector_Gauges(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.Gauges(3, 2, 10, 1, 4)

	if v := gaugeValue(t, c.agents); v != 3 {
		t.Errorf("agents gauge = %v, want 3", v)
	}
	if v := gaugeValue(t, c.frameworks); v != 2 {
		t.Errorf("frameworks gauge = %v, want 2", v)
	}
	if v := gaugeValue(t, c.tasks); v != 10 {
		t.Errorf("tasks gauge = %v, want 10", v)
	}
	if v := gaugeValue(t, c.waiting); v != 1 {
		t.Errorf("waiting gauge = %v, want 1", v)
	}
	if v := gaugeValue(t, c.subscribers); v != 4 {
		t.Errorf("subscribers gauge = %v, want 4", v)
	}
}

func TestCollector_SetConnected(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.SetConnected(true)
	if v := gaugeValue(t, c.connected); v != 1 {
		t.Errorf("connected = %v, want 1", v)
	}

	c.SetConnected(false)
	if v := gaugeValue(t, c.connected); v != 0 {
		t.Errorf("connected = %v, want 0", v)
	}
}

func TestCollector_EventProcessedAndReconnected(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.EventProcessed(mesosapi.EventHeartbeat)
	c.EventProcessed(mesosapi.EventHeartbeat)
	c.EventProcessed(mesosapi.EventTaskAdded)

	if v := counterValue(t, c.eventsTotal.WithLabelValues(string(mesosapi.EventHeartbeat))); v != 2 {
		t.Errorf("heartbeat events = %v, want 2", v)
	}
	if v := counterValue(t, c.eventsTotal.WithLabelValues(string(mesosapi.EventTaskAdded))); v != 1 {
		t.Errorf("task_added events = %v, want 1", v)
	}

	c.Reconnected()
	c.Reconnected()
	if v := counterValue(t, c.reconnectTotal); v != 2 {
		t.Errorf("reconnectTotal = %v, want 2", v)
	}
}

func TestCollector_FrameDropped(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	c.FrameDropped()
	c.FrameDropped()
	c.FrameDropped()
	if v := counterValue(t, c.framesDropped); v != 3 {
		t.Errorf("framesDropped = %v, want 3", v)
	}
}
