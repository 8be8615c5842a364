package state

import "go.uber.org/zap"

// UpsertResult describes the outcome of an upsert for callers that need to
// react to it (the tracker actor fans every result out to the subscriber
// registry unless NoOp is set).
type UpsertResult struct {
	Task       Task
	NoOp       bool
	Terminated bool // task reached a terminal state and was removed
}

// Store is the Tracker's exclusive in-memory model: agents, frameworks,
// non-terminal tasks, and the waiting-on-join index. It is not safe for
// concurrent use by design — exactly one goroutine (the Tracker actor) may
// call into it, matching the single-threaded actor model the cluster-state
// tracker requires.
type Store struct {
	log *zap.Logger

	agents     map[AgentID]Agent
	frameworks map[FrameworkID]Framework
	tasks      map[TaskID]Task
	waiting    map[TaskID]struct{}

	projector *Projector
}

func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		log:        log.Named("state"),
		agents:     map[AgentID]Agent{},
		frameworks: map[FrameworkID]Framework{},
		tasks:      map[TaskID]Task{},
		waiting:    map[TaskID]struct{}{},
	}
	s.projector = NewProjector(s)
	return s
}

func (s *Store) Agent(id AgentID) (Agent, bool) {
	a, ok := s.agents[id]
	return a, ok
}

func (s *Store) Framework(id FrameworkID) (Framework, bool) {
	f, ok := s.frameworks[id]
	return f, ok
}

func (s *Store) Task(id TaskID) (Task, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// Tasks returns a snapshot copy of the current task map, suitable for handing
// to a newly-subscribed peer.
func (s *Store) Tasks() map[TaskID]Task {
	out := make(map[TaskID]Task, len(s.tasks))
	for k, v := range s.tasks {
		out[k] = v
	}
	return out
}

func (s *Store) WaitingCount() int   { return len(s.waiting) }
func (s *Store) AgentCount() int     { return len(s.agents) }
func (s *Store) FrameworkCount() int { return len(s.frameworks) }
func (s *Store) TaskCount() int      { return len(s.tasks) }

// UpsertAgent adds or replaces an agent, deriving its IPv4 from hostname, and
// resolves any tasks waiting on it.
func (s *Store) UpsertAgent(id AgentID, hostname string) []UpsertResult {
	s.agents[id] = Agent{ID: id, IPv4: deriveAgentIPv4(hostname)}
	s.log.Debug("agent upserted", zap.String("agent_id", string(id)), zap.String("hostname", hostname))
	return s.resolveWaitingAgent(id)
}

// RemoveAgent deletes an agent. Per the data-model lifecycle, this does not
// cascade to tasks — tasks retain whatever was last projected.
func (s *Store) RemoveAgent(id AgentID) {
	delete(s.agents, id)
	s.log.Debug("agent removed", zap.String("agent_id", string(id)))
}

// UpsertFramework adds or replaces a framework and resolves any tasks waiting
// on it.
func (s *Store) UpsertFramework(id FrameworkID, name string) []UpsertResult {
	s.frameworks[id] = Framework{ID: id, Name: name}
	s.log.Debug("framework upserted", zap.String("framework_id", string(id)), zap.String("name", name))
	return s.resolveWaitingFramework(id)
}

// RemoveFramework deletes a framework. Like agent removal, this does not
// cascade to tasks.
func (s *Store) RemoveFramework(id FrameworkID) {
	delete(s.frameworks, id)
	s.log.Debug("framework removed", zap.String("framework_id", string(id)))
}

// UpsertTask stores an already-projected task (see Projector) and applies the
// diff engine rules: a no-op diff leaves the store untouched, a terminal task
// removes the task, otherwise the new task is stored and the waiting index
// updated.
func (s *Store) UpsertTask(t Task) UpsertResult {
	prev, hadPrev := s.tasks[t.ID]

	if hadPrev && prev.equal(t) {
		return UpsertResult{Task: prev, NoOp: true}
	}

	fields := changedFields(prev, t)
	s.log.Debug("task diff",
		zap.String("task_id", string(t.ID)),
		zap.Strings("changed_fields", fields),
	)

	if t.State.Kind == TaskTerminal {
		delete(s.tasks, t.ID)
		delete(s.waiting, t.ID)
		return UpsertResult{Task: t, Terminated: true}
	}

	s.tasks[t.ID] = t
	if t.IsWaiting() {
		s.waiting[t.ID] = struct{}{}
	} else {
		delete(s.waiting, t.ID)
	}

	return UpsertResult{Task: t}
}

// Projector exposes the store's projector for callers (the event dispatcher)
// that need to project before upserting.
func (s *Store) Projector() *Projector { return s.projector }

// resolveWaitingAgent re-projects every waiting task whose agent_ip
// references id, per the join-resolver design: iterate waiting, and for each
// task whose relevant field is Unresolved(id), re-upsert.
func (s *Store) resolveWaitingAgent(id AgentID) []UpsertResult {
	var results []UpsertResult
	for _, taskID := range s.snapshotWaiting() {
		task, ok := s.tasks[taskID]
		if !ok {
			continue
		}
		if task.AgentIP.State != AgentIPUnresolved || task.AgentIP.AgentID != id {
			continue
		}
		agent := s.agents[id]
		task.AgentIP = ResolvedAgentIP(agent.IPv4)
		results = append(results, s.UpsertTask(task))
	}
	return results
}

func (s *Store) resolveWaitingFramework(id FrameworkID) []UpsertResult {
	var results []UpsertResult
	for _, taskID := range s.snapshotWaiting() {
		task, ok := s.tasks[taskID]
		if !ok {
			continue
		}
		if task.Framework.Resolved || task.Framework.ID != id {
			continue
		}
		fw := s.frameworks[id]
		task.Framework = ResolvedFramework(fw.Name)
		results = append(results, s.UpsertTask(task))
	}
	return results
}

// snapshotWaiting copies the waiting set's keys so resolveWaiting* can
// mutate s.waiting (via UpsertTask) while iterating without racing a live
// map.
func (s *Store) snapshotWaiting() []TaskID {
	ids := make([]TaskID, 0, len(s.waiting))
	for id := range s.waiting {
		ids = append(ids, id)
	}
	return ids
}
