package state

import (
	"net"
	"testing"
)

func TestAgentIPRef_Equal(t *testing.T) {
	a := ResolvedAgentIP(net.ParseIP("10.0.0.1"))
	b := ResolvedAgentIP(net.ParseIP("10.0.0.1"))
	c := ResolvedAgentIP(net.ParseIP("10.0.0.2"))
	if !a.equal(b) {
		t.Error("equal IPs should be equal")
	}
	if a.equal(c) {
		t.Error("different IPs should not be equal")
	}

	absent := ResolvedAgentIP(nil)
	if absent.State != AgentIPAbsent {
		t.Errorf("ResolvedAgentIP(nil) state = %v, want AgentIPAbsent", absent.State)
	}
	if !absent.equal(ResolvedAgentIP(nil)) {
		t.Error("two Absent refs should be equal regardless of IP")
	}

	u1 := UnresolvedAgentIP(AgentID("agent-1"))
	u2 := UnresolvedAgentIP(AgentID("agent-1"))
	u3 := UnresolvedAgentIP(AgentID("agent-2"))
	if !u1.equal(u2) {
		t.Error("unresolved refs to the same agent should be equal")
	}
	if u1.equal(u3) {
		t.Error("unresolved refs to different agents should not be equal")
	}
	if u1.equal(absent) {
		t.Error("unresolved and absent are different states")
	}
}

func TestFrameworkRef_Equal(t *testing.T) {
	r1 := ResolvedFramework("marathon")
	r2 := ResolvedFramework("marathon")
	r3 := ResolvedFramework("chronos")
	if !r1.equal(r2) {
		t.Error("same-name resolved refs should be equal")
	}
	if r1.equal(r3) {
		t.Error("different-name resolved refs should not be equal")
	}

	u1 := UnresolvedFramework(FrameworkID("fw-1"))
	u2 := UnresolvedFramework(FrameworkID("fw-1"))
	if !u1.equal(u2) {
		t.Error("unresolved refs to the same id should be equal")
	}
	if r1.equal(u1) {
		t.Error("resolved and unresolved should never be equal")
	}
}

func TestTask_IsWaiting(t *testing.T) {
	resolved := Task{
		Framework: ResolvedFramework("marathon"),
		AgentIP:   ResolvedAgentIP(net.ParseIP("10.0.0.1")),
	}
	if resolved.IsWaiting() {
		t.Error("fully resolved task should not be waiting")
	}

	waitingOnFramework := resolved
	waitingOnFramework.Framework = UnresolvedFramework(FrameworkID("fw-1"))
	if !waitingOnFramework.IsWaiting() {
		t.Error("task with unresolved framework should be waiting")
	}

	waitingOnAgent := resolved
	waitingOnAgent.AgentIP = UnresolvedAgentIP(AgentID("agent-1"))
	if !waitingOnAgent.IsWaiting() {
		t.Error("task with unresolved agent_ip should be waiting")
	}

	absentIsNotWaiting := resolved
	absentIsNotWaiting.AgentIP = ResolvedAgentIP(nil)
	if absentIsNotWaiting.IsWaiting() {
		t.Error("an Absent agent_ip should not count as waiting — it never resolves further")
	}
}

func TestTask_Equal(t *testing.T) {
	base := Task{
		ID:        TaskID("task-1"),
		Name:      "web",
		Framework: ResolvedFramework("marathon"),
		AgentIP:   ResolvedAgentIP(net.ParseIP("10.0.0.1")),
		State:     TaskState{Kind: TaskRunning},
	}

	same := base
	if !base.equal(same) {
		t.Error("identical tasks should be equal")
	}

	renamed := base
	renamed.Name = "web2"
	if base.equal(renamed) {
		t.Error("different names should not be equal")
	}

	changed := changedFields(base, renamed)
	if len(changed) != 1 || changed[0] != "name" {
		t.Errorf("changedFields = %v, want [name]", changed)
	}
}

func TestTaskPort_Equal(t *testing.T) {
	p1 := TaskPort{Name: "web", Port: u16ptr(80), HostPort: u16ptr(31000), Protocol: "tcp", VIPs: []string{"/svc:80"}}
	p2 := TaskPort{Name: "web", Port: u16ptr(80), HostPort: u16ptr(31000), Protocol: "tcp", VIPs: []string{"/svc:80"}}
	p3 := TaskPort{Name: "web", Port: u16ptr(81), HostPort: u16ptr(31000), Protocol: "tcp"}

	if !p1.equal(p2) {
		t.Error("identical ports should be equal")
	}
	if p1.equal(p3) {
		t.Error("different ports should not be equal")
	}

	var nilA, nilB *uint16
	if !u16eq(nilA, nilB) {
		t.Error("two nil port pointers should be equal")
	}
	if u16eq(u16ptr(1), nilB) {
		t.Error("a nil and a non-nil port pointer should not be equal")
	}
}
