package tracker

import (
	"time"

	"go.uber.org/zap"

	"github.com/dcos-net/mesos-tracker/internal/mesosapi"
	"github.com/dcos-net/mesos-tracker/internal/state"
)

// dispatch routes one decoded envelope by its type field, per the event
// dispatcher's table. It returns the heartbeat interval carried by
// SUBSCRIBED (zero otherwise) so the caller can (re)arm the watchdog; every
// other side effect (store mutation, subscriber fan-out) happens in place.
func (t *Tracker) dispatch(env mesosapi.Envelope) (heartbeatInterval time.Duration) {
	switch env.Type {
	case mesosapi.EventSubscribed:
		if env.Subscribed == nil {
			t.log.Error("SUBSCRIBED event missing payload")
			return 0
		}
		return t.applySnapshot(*env.Subscribed)

	case mesosapi.EventHeartbeat:
		// No-op handler; the watchdog reset happens in the caller using the
		// last-known interval.
		return 0

	case mesosapi.EventTaskAdded:
		if env.TaskAdded == nil {
			t.log.Error("TASK_ADDED event missing payload")
			return 0
		}
		t.upsertTask(t.store.Projector().ProjectTaskAdded(env.TaskAdded.Task))
		return 0

	case mesosapi.EventTaskUpdated:
		if env.TaskUpdated == nil {
			t.log.Error("TASK_UPDATED event missing payload")
			return 0
		}
		task := t.store.Projector().ProjectTaskUpdated(env.TaskUpdated.FrameworkID, env.TaskUpdated.Status)
		t.upsertTask(task)
		return 0

	case mesosapi.EventFrameworkAdded:
		if env.FrameworkAdded == nil {
			t.log.Error("FRAMEWORK_ADDED event missing payload")
			return 0
		}
		t.upsertFramework(env.FrameworkAdded.Framework.FrameworkInfo)
		return 0

	case mesosapi.EventFrameworkUpdated:
		if env.FrameworkUpdated == nil {
			t.log.Error("FRAMEWORK_UPDATED event missing payload")
			return 0
		}
		t.upsertFramework(env.FrameworkUpdated.Framework.FrameworkInfo)
		return 0

	case mesosapi.EventFrameworkRemoved:
		if env.FrameworkRemoved == nil {
			t.log.Error("FRAMEWORK_REMOVED event missing payload")
			return 0
		}
		id := state.FrameworkID(env.FrameworkRemoved.FrameworkInfo.ID.Value)
		t.store.RemoveFramework(id)
		return 0

	case mesosapi.EventAgentAdded:
		if env.AgentAdded == nil {
			t.log.Error("AGENT_ADDED event missing payload")
			return 0
		}
		t.upsertAgent(env.AgentAdded.Agent.AgentInfo)
		return 0

	case mesosapi.EventAgentRemoved:
		if env.AgentRemoved == nil {
			t.log.Error("AGENT_REMOVED event missing payload")
			return 0
		}
		id := state.AgentID(env.AgentRemoved.AgentID.Value)
		t.store.RemoveAgent(id)
		return 0

	default:
		t.log.Error("unknown event type, dropping", zap.String("type", string(env.Type)))
		return 0
	}
}

// applySnapshot implements the initial-snapshot sequence: agents, then
// frameworks, then tasks, then activate the subscriber registry.
func (t *Tracker) applySnapshot(sub mesosapi.SubscribedPayload) time.Duration {
	for _, aw := range sub.GetAgents.Agents {
		t.upsertAgent(aw.AgentInfo)
	}
	for _, fw := range sub.GetFrameworks.Frameworks {
		t.upsertFramework(fw.FrameworkInfo)
	}
	for _, task := range sub.GetTasks.Tasks {
		t.upsertTask(t.store.Projector().ProjectTaskAdded(task))
	}

	t.registry.Activate()

	interval := time.Duration(sub.HeartbeatIntervalSeconds * float64(time.Second))
	t.log.Info("snapshot applied",
		zap.Int("agents", t.store.AgentCount()),
		zap.Int("frameworks", t.store.FrameworkCount()),
		zap.Int("tasks", t.store.TaskCount()),
		zap.Duration("heartbeat_interval", interval),
	)
	return interval
}

func (t *Tracker) upsertAgent(info mesosapi.AgentInfo) {
	id := state.AgentID(info.ID.Value)
	results := t.store.UpsertAgent(id, info.Hostname)
	t.publishAll(results)
}

func (t *Tracker) upsertFramework(info mesosapi.FrameworkInfo) {
	id := state.FrameworkID(info.ID.Value)
	results := t.store.UpsertFramework(id, info.Name)
	t.publishAll(results)
}

func (t *Tracker) upsertTask(task state.Task) {
	t.publish(t.store.UpsertTask(task))
}

func (t *Tracker) publishAll(results []state.UpsertResult) {
	for _, r := range results {
		t.publish(r)
	}
}

// publish fans a non-no-op upsert result out to every attached subscriber.
// A terminated task is still published once (with its terminal state) so
// subscribers observe the removal, matching S3.
func (t *Tracker) publish(r state.UpsertResult) {
	if r.NoOp {
		return
	}
	t.registry.Publish(r.Task.ID, r.Task)
}
