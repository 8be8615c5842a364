package state

import (
	"net"
	"testing"

	"github.com/dcos-net/mesos-tracker/internal/mesosapi"
)

func boolPtr(v bool) *bool { return &v }

// TestScenario_S1_ResolveOrderAgentBeforeTask projects a task whose agent is
// already known but whose framework is not.
func TestScenario_S1_ResolveOrderAgentBeforeTask(t *testing.T) {
	store := NewStore(nil)
	store.UpsertAgent(AgentID("a1"), "10.0.0.5")

	info := mesosapi.TaskInfo{
		TaskID:      mesosapi.IDValue{Value: "t1"},
		Name:        "n",
		FrameworkID: mesosapi.IDValue{Value: "f1"},
		AgentID:     mesosapi.IDValue{Value: "a1"},
		Statuses: []mesosapi.TaskStatus{
			{State: "TASK_RUNNING", Timestamp: 1},
		},
	}

	task := store.Projector().ProjectTaskAdded(info)
	result := store.UpsertTask(task)

	if result.NoOp || result.Terminated {
		t.Fatalf("unexpected result: %+v", result)
	}
	if task.Name != "n" {
		t.Errorf("Name = %q, want n", task.Name)
	}
	if task.Framework.Resolved {
		t.Error("framework should be Unresolved(f1)")
	}
	if task.Framework.ID != FrameworkID("f1") {
		t.Errorf("Framework.ID = %q, want f1", task.Framework.ID)
	}
	if task.AgentIP.State != AgentIPPresent || task.AgentIP.IP.String() != "10.0.0.5" {
		t.Errorf("AgentIP = %+v, want Present(10.0.0.5)", task.AgentIP)
	}
	if task.State.Kind != TaskRunning {
		t.Errorf("State.Kind = %v, want TaskRunning", task.State.Kind)
	}
	if !task.IsWaiting() {
		t.Error("task should be waiting on its framework")
	}
	if store.WaitingCount() != 1 {
		t.Errorf("WaitingCount = %d, want 1", store.WaitingCount())
	}
}

// TestScenario_S2_LateFrameworkResolution continues S1 with the framework
// arriving afterward, and checks the waiting task gets re-resolved.
func TestScenario_S2_LateFrameworkResolution(t *testing.T) {
	store := NewStore(nil)
	store.UpsertAgent(AgentID("a1"), "10.0.0.5")

	info := mesosapi.TaskInfo{
		TaskID:      mesosapi.IDValue{Value: "t1"},
		Name:        "n",
		FrameworkID: mesosapi.IDValue{Value: "f1"},
		AgentID:     mesosapi.IDValue{Value: "a1"},
		Statuses:    []mesosapi.TaskStatus{{State: "TASK_RUNNING", Timestamp: 1}},
	}
	store.UpsertTask(store.Projector().ProjectTaskAdded(info))

	results := store.UpsertFramework(FrameworkID("f1"), "marathon")
	if len(results) != 1 {
		t.Fatalf("resolveWaitingFramework returned %d results, want 1", len(results))
	}
	if results[0].Task.Framework.Name != "marathon" {
		t.Errorf("Framework.Name = %q, want marathon", results[0].Task.Framework.Name)
	}
	if store.WaitingCount() != 0 {
		t.Errorf("WaitingCount = %d, want 0", store.WaitingCount())
	}

	got, ok := store.Task(TaskID("t1"))
	if !ok || !got.Framework.Resolved || got.Framework.Name != "marathon" {
		t.Errorf("stored task = %+v", got)
	}
}

// TestScenario_S3_TerminalRemoves continues S2 with a terminal TASK_UPDATED.
func TestScenario_S3_TerminalRemoves(t *testing.T) {
	store := NewStore(nil)
	store.UpsertAgent(AgentID("a1"), "10.0.0.5")
	store.UpsertFramework(FrameworkID("f1"), "marathon")

	info := mesosapi.TaskInfo{
		TaskID:      mesosapi.IDValue{Value: "t1"},
		FrameworkID: mesosapi.IDValue{Value: "f1"},
		AgentID:     mesosapi.IDValue{Value: "a1"},
		Statuses:    []mesosapi.TaskStatus{{State: "TASK_RUNNING", Timestamp: 1}},
	}
	store.UpsertTask(store.Projector().ProjectTaskAdded(info))

	status := mesosapi.TaskStatus{TaskID: mesosapi.IDValue{Value: "t1"}, State: "TASK_FINISHED", Timestamp: 2}
	task := store.Projector().ProjectTaskUpdated(mesosapi.IDValue{Value: "f1"}, status)
	result := store.UpsertTask(task)

	if !result.Terminated {
		t.Fatal("expected Terminated result")
	}
	if result.Task.State.Kind != TaskTerminal {
		t.Errorf("State.Kind = %v, want TaskTerminal", result.Task.State.Kind)
	}
	if _, ok := store.Task(TaskID("t1")); ok {
		t.Error("terminal task should be removed from the store")
	}
	if store.TaskCount() != 0 {
		t.Errorf("TaskCount = %d, want 0", store.TaskCount())
	}
}

// TestScenario_S5_PortMerge is traced directly from the worked example: a
// DOCKER task whose single port mapping and single discovery port describe
// the same logical port, merged into one record.
func TestScenario_S5_PortMerge(t *testing.T) {
	container := &mesosapi.ContainerInfo{
		Type: "DOCKER",
		Docker: &struct {
			PortMappings []mesosapi.PortMapping `json:"port_mappings"`
		}{
			PortMappings: []mesosapi.PortMapping{
				{Protocol: "tcp", ContainerPort: 8080, HostPort: 31000},
			},
		},
	}
	discovery := &mesosapi.DiscoveryInfo{}
	discovery.Ports.Ports = []mesosapi.DiscoveryPort{
		{
			Number:   8080,
			Protocol: "tcp",
			Labels: &struct {
				Labels []mesosapi.Label `json:"labels"`
			}{
				Labels: []mesosapi.Label{{Key: "VIP_0", Value: "/svc:80"}},
			},
		},
	}

	ports := projectPorts(container, discovery)
	if len(ports) != 1 {
		t.Fatalf("len(ports) = %d, want 1: %+v", len(ports), ports)
	}

	p := ports[0]
	if p.Protocol != "tcp" {
		t.Errorf("Protocol = %q, want tcp", p.Protocol)
	}
	if p.Port == nil || *p.Port != 8080 {
		t.Errorf("Port = %v, want 8080", p.Port)
	}
	if p.HostPort == nil || *p.HostPort != 31000 {
		t.Errorf("HostPort = %v, want 31000", p.HostPort)
	}
	if p.VIPScope != VIPScopeHost {
		t.Errorf("VIPScope = %v, want VIPScopeHost", p.VIPScope)
	}
	if len(p.VIPs) != 1 || p.VIPs[0] != "/svc:80" {
		t.Errorf("VIPs = %v, want [/svc:80]", p.VIPs)
	}
}

func TestProjectPorts_ContainerScopedDiscoveryUnmatched(t *testing.T) {
	discovery := &mesosapi.DiscoveryInfo{}
	discovery.Ports.Ports = []mesosapi.DiscoveryPort{
		{
			Number:   9090,
			Protocol: "tcp",
			Name:     "metrics",
			Labels: &struct {
				Labels []mesosapi.Label `json:"labels"`
			}{
				Labels: []mesosapi.Label{{Key: "network-scope", Value: "container"}},
			},
		},
	}

	ports := projectPorts(nil, discovery)
	if len(ports) != 1 {
		t.Fatalf("len(ports) = %d, want 1", len(ports))
	}
	p := ports[0]
	if p.VIPScope != VIPScopeContainer {
		t.Errorf("VIPScope = %v, want VIPScopeContainer", p.VIPScope)
	}
	if p.Port == nil || *p.Port != 9090 {
		t.Errorf("Port = %v, want 9090", p.Port)
	}
	if p.HostPort != nil {
		t.Error("HostPort should be nil for a container-scoped unmatched discovery port")
	}
}

func TestProjectPorts_NilContainerAndDiscovery(t *testing.T) {
	if got := projectPorts(nil, nil); got != nil {
		t.Errorf("projectPorts(nil, nil) = %v, want nil", got)
	}
}

// TestMputSemantics_EmptyDoesNotClobber checks that a TASK_UPDATED carrying
// no container info at all leaves a previously-projected ContainerIP intact.
func TestMputSemantics_EmptyDoesNotClobber(t *testing.T) {
	store := NewStore(nil)

	added := mesosapi.TaskInfo{
		TaskID: mesosapi.IDValue{Value: "t1"},
		Statuses: []mesosapi.TaskStatus{
			{
				State:     "TASK_RUNNING",
				Timestamp: 1,
				ContainerStatus: &mesosapi.ContainerStatus{
					NetworkInfos: []mesosapi.NetworkInfo{
						{IPAddresses: []mesosapi.IPAddress{{IPAddress: "172.17.0.2"}}},
					},
				},
			},
		},
	}
	store.UpsertTask(store.Projector().ProjectTaskAdded(added))

	updated := mesosapi.TaskStatus{
		TaskID:    mesosapi.IDValue{Value: "t1"},
		State:     "TASK_RUNNING",
		Healthy:   boolPtr(true),
		Timestamp: 2,
	}
	task := store.Projector().ProjectTaskUpdated(mesosapi.IDValue{}, updated)
	store.UpsertTask(task)

	got, ok := store.Task(TaskID("t1"))
	if !ok {
		t.Fatal("task not found")
	}
	if len(got.ContainerIP) != 1 || !got.ContainerIP[0].Equal(net.ParseIP("172.17.0.2")) {
		t.Errorf("ContainerIP = %v, want [172.17.0.2] (must not be clobbered by an update with no container_status)", got.ContainerIP)
	}
	if got.State.Kind != TaskRunningHealthy || !got.State.Healthy {
		t.Errorf("State = %+v, want RunningHealthy(true)", got.State)
	}
}

func TestMaxTimestampStatus_PicksLatest(t *testing.T) {
	statuses := []mesosapi.TaskStatus{
		{State: "TASK_STAGING", Timestamp: 1},
		{State: "TASK_RUNNING", Timestamp: 3},
		{State: "TASK_STARTING", Timestamp: 2},
	}
	st, ok := maxTimestampStatus(statuses)
	if !ok || st.State != "TASK_RUNNING" {
		t.Errorf("maxTimestampStatus = %+v, want TASK_RUNNING", st)
	}
}

func TestProjectContainerIP_SkipsUnparseable(t *testing.T) {
	statuses := []mesosapi.TaskStatus{
		{
			Timestamp: 1,
			ContainerStatus: &mesosapi.ContainerStatus{
				NetworkInfos: []mesosapi.NetworkInfo{
					{IPAddresses: []mesosapi.IPAddress{
						{IPAddress: "not-an-ip"},
						{IPAddress: "10.0.0.9"},
					}},
				},
			},
		},
	}
	ips := projectContainerIP(statuses)
	if len(ips) != 1 || ips[0].String() != "10.0.0.9" {
		t.Errorf("projectContainerIP = %v, want [10.0.0.9]", ips)
	}
}

// TestDiffIdempotent checks testable property 6: diff(project(T),
// project(T)) = nil for equal input — re-projecting the same TaskInfo twice
// must be a no-op on the second pass.
func TestDiffIdempotent(t *testing.T) {
	store := NewStore(nil)
	store.UpsertAgent(AgentID("a1"), "10.0.0.5")
	store.UpsertFramework(FrameworkID("f1"), "marathon")

	info := mesosapi.TaskInfo{
		TaskID:      mesosapi.IDValue{Value: "t1"},
		Name:        "n",
		FrameworkID: mesosapi.IDValue{Value: "f1"},
		AgentID:     mesosapi.IDValue{Value: "a1"},
		Statuses:    []mesosapi.TaskStatus{{State: "TASK_RUNNING", Timestamp: 1}},
	}

	first := store.UpsertTask(store.Projector().ProjectTaskAdded(info))
	if first.NoOp {
		t.Fatal("first upsert should not be a no-op")
	}

	second := store.UpsertTask(store.Projector().ProjectTaskAdded(info))
	if !second.NoOp {
		t.Error("re-projecting identical input should be a no-op")
	}
}
