package state

import "net"

// FrameworkRef is the tagged Resolved(V) | Unresolved(Id) variant the design
// notes call for: a task's framework reference is either a resolved
// framework name or the still-unresolved framework id it was last seen
// referencing. Callers must switch on Resolved rather than treating any
// field as a nullable sentinel.
type FrameworkRef struct {
	Resolved bool
	Name     string      // valid iff Resolved
	ID       FrameworkID // valid iff !Resolved
}

func ResolvedFramework(name string) FrameworkRef {
	return FrameworkRef{Resolved: true, Name: name}
}

func UnresolvedFramework(id FrameworkID) FrameworkRef {
	return FrameworkRef{Resolved: false, ID: id}
}

// AgentIPState distinguishes the three states a task's agent_ip reference can
// be in: the owning agent hasn't been seen at all yet (Unresolved), the
// agent is known but reported no IPv4 (Absent), or the agent is known and has
// an IPv4 (Present). Collapsing Absent and Unresolved into a single "no IP"
// case would lose the distinction the join resolver depends on: an Absent
// agent_ip never becomes Present later by itself, while an Unresolved one
// does as soon as the agent arrives.
type AgentIPState int

const (
	AgentIPUnresolved AgentIPState = iota
	AgentIPAbsent
	AgentIPPresent
)

type AgentIPRef struct {
	State   AgentIPState
	IP      net.IP  // valid iff State == AgentIPPresent
	AgentID AgentID // valid iff State == AgentIPUnresolved
}

func UnresolvedAgentIP(id AgentID) AgentIPRef {
	return AgentIPRef{State: AgentIPUnresolved, AgentID: id}
}

func ResolvedAgentIP(ip net.IP) AgentIPRef {
	if ip == nil {
		return AgentIPRef{State: AgentIPAbsent}
	}
	return AgentIPRef{State: AgentIPPresent, IP: ip}
}

func (r AgentIPRef) equal(o AgentIPRef) bool {
	if r.State != o.State {
		return false
	}
	switch r.State {
	case AgentIPPresent:
		return r.IP.Equal(o.IP)
	case AgentIPUnresolved:
		return r.AgentID == o.AgentID
	default:
		return true
	}
}

func (r FrameworkRef) equal(o FrameworkRef) bool {
	if r.Resolved != o.Resolved {
		return false
	}
	if r.Resolved {
		return r.Name == o.Name
	}
	return r.ID == o.ID
}

// TaskStateKind is one of the four task lifecycle states a non-removed task
// can be in.
type TaskStateKind int

const (
	TaskStarting TaskStateKind = iota
	TaskRunning
	TaskRunningHealthy
	TaskTerminal
)

// TaskState carries Healthy only when Kind is TaskRunningHealthy; the
// open-question note in the design docs says this path is known not to fire
// against current Mesos masters (an upstream bug), but the tracker
// implements the intended semantics regardless and does not special-case it.
type TaskState struct {
	Kind    TaskStateKind
	Healthy bool
}

func (s TaskState) equal(o TaskState) bool {
	if s.Kind != o.Kind {
		return false
	}
	if s.Kind == TaskRunningHealthy {
		return s.Healthy == o.Healthy
	}
	return true
}

// VIPScope records whether a TaskPort's VIP list came from a container- or
// host-scoped discovery port; downstream load-balancing treats the two
// differently (container-scoped VIPs route to the container port, host-scoped
// ones to the host port).
type VIPScope int

const (
	VIPScopeNone VIPScope = iota
	VIPScopeContainer
	VIPScopeHost
)

// TaskPort is one merged port record. Port and HostPort are pointers because
// either, both, or neither may be known for a given record, and "unknown"
// must be distinguishable from the zero port.
type TaskPort struct {
	Name     string
	Port     *uint16
	HostPort *uint16
	Protocol string
	VIPScope VIPScope
	VIPs     []string
}

func u16ptr(v uint16) *uint16 { return &v }

func u16eq(a, b *uint16) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (p TaskPort) equal(o TaskPort) bool {
	return p.Name == o.Name &&
		u16eq(p.Port, o.Port) &&
		u16eq(p.HostPort, o.HostPort) &&
		p.Protocol == o.Protocol &&
		p.VIPScope == o.VIPScope &&
		stringsEqual(p.VIPs, o.VIPs)
}

func portsEqual(a, b []TaskPort) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].equal(b[i]) {
			return false
		}
	}
	return true
}

func ipsEqual(a, b []net.IP) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Task is the canonical, projected view of a Mesos task.
type Task struct {
	ID          TaskID
	Name        string
	Framework   FrameworkRef
	AgentIP     AgentIPRef
	ContainerIP []net.IP
	State       TaskState
	Ports       []TaskPort
}

// IsWaiting reports whether this task belongs in the waiting set: it has at
// least one reference that is not yet resolved.
func (t Task) IsWaiting() bool {
	return !t.Framework.Resolved || t.AgentIP.State == AgentIPUnresolved
}

// equal reports whether two tasks are identical across every projected
// field. Used by the diff engine to decide whether an upsert is a no-op.
func (t Task) equal(o Task) bool {
	return t.ID == o.ID &&
		t.Name == o.Name &&
		t.Framework.equal(o.Framework) &&
		t.AgentIP.equal(o.AgentIP) &&
		ipsEqual(t.ContainerIP, o.ContainerIP) &&
		t.State.equal(o.State) &&
		portsEqual(t.Ports, o.Ports)
}

// changedFields returns the names of the top-level fields that differ
// between prev and next, for diagnostic logging. It is not used for the
// no-op decision itself (equal is), only to describe what changed.
func changedFields(prev, next Task) []string {
	var changed []string
	if prev.Name != next.Name {
		changed = append(changed, "name")
	}
	if !prev.Framework.equal(next.Framework) {
		changed = append(changed, "framework")
	}
	if !prev.AgentIP.equal(next.AgentIP) {
		changed = append(changed, "agent_ip")
	}
	if !ipsEqual(prev.ContainerIP, next.ContainerIP) {
		changed = append(changed, "container_ip")
	}
	if !prev.State.equal(next.State) {
		changed = append(changed, "state")
	}
	if !portsEqual(prev.Ports, next.Ports) {
		changed = append(changed, "ports")
	}
	return changed
}
