package state

import (
	"net"
	"sort"
	"strings"

	"github.com/dcos-net/mesos-tracker/internal/mesosapi"
)

// projected is the partial-view output of one projection pass: every field
// is "absent" unless computed from this event, so merging never clobbers
// information a prior, narrower event already established. ContainerIP and
// Ports use nil-vs-non-nil to mean absent-vs-present; an explicitly empty
// non-nil slice would also count as present in Go, so the projector never
// allocates an empty non-nil slice — it leaves it nil when there is nothing
// to report.
type projected struct {
	name        *string
	framework   *FrameworkRef
	agentIP     *AgentIPRef
	containerIP []net.IP
	taskState   *TaskState
	ports       []TaskPort
}

// Projector turns raw Mesos wire objects into canonical Task records, merging
// them onto whatever the Store already knows about a task. It needs read
// access to the agents/frameworks collections to resolve references, which
// is why it takes a *Store rather than operating standalone.
type Projector struct {
	store *Store
}

func NewProjector(store *Store) *Projector {
	return &Projector{store: store}
}

// ProjectTaskAdded projects a full TaskInfo (TASK_ADDED, or a SUBSCRIBED
// snapshot entry) and merges it onto the task's prior record, if any.
func (p *Projector) ProjectTaskAdded(info mesosapi.TaskInfo) Task {
	id := TaskID(info.TaskID.Value)
	prev, _ := p.store.Task(id)

	pr := projected{}
	if info.Name != "" {
		pr.name = &info.Name
	}
	pr.framework = p.resolveFramework(FrameworkID(info.FrameworkID.Value))
	pr.agentIP = p.resolveAgentIP(AgentID(info.AgentID.Value))
	pr.containerIP = projectContainerIP(info.Statuses)
	pr.taskState = projectState(info.Statuses)
	pr.ports = projectPorts(info.Container, info.Discovery)

	return mergeProjected(id, prev, pr)
}

// ProjectTaskUpdated projects a TASK_UPDATED event: a single TaskStatus plus
// the framework id carried alongside it at the top level. There is no full
// TaskInfo here, so everything the status doesn't carry (name, container
// info, discovery info) stays absent and the merge preserves whatever the
// task already had.
func (p *Projector) ProjectTaskUpdated(frameworkID mesosapi.IDValue, status mesosapi.TaskStatus) Task {
	id := TaskID(status.TaskID.Value)
	prev, _ := p.store.Task(id)

	pr := projected{}
	pr.framework = p.resolveFramework(FrameworkID(frameworkID.Value))
	if status.AgentID != nil {
		pr.agentIP = p.resolveAgentIP(AgentID(status.AgentID.Value))
	}
	pr.containerIP = projectContainerIP([]mesosapi.TaskStatus{status})
	pr.taskState = projectState([]mesosapi.TaskStatus{status})

	return mergeProjected(id, prev, pr)
}

func (p *Projector) resolveFramework(id FrameworkID) *FrameworkRef {
	var ref FrameworkRef
	if fw, ok := p.store.Framework(id); ok {
		ref = ResolvedFramework(fw.Name)
	} else {
		ref = UnresolvedFramework(id)
	}
	return &ref
}

func (p *Projector) resolveAgentIP(id AgentID) *AgentIPRef {
	var ref AgentIPRef
	if ag, ok := p.store.Agent(id); ok {
		ref = ResolvedAgentIP(ag.IPv4)
	} else {
		ref = UnresolvedAgentIP(id)
	}
	return &ref
}

// mergeProjected applies mput (coalescing-update) semantics: start from prev
// (empty Task if this is a new id) and overwrite a field only when pr
// computed a non-absent, non-empty value for it.
func mergeProjected(id TaskID, prev Task, pr projected) Task {
	next := prev
	next.ID = id

	if pr.name != nil {
		next.Name = *pr.name
	}
	if pr.framework != nil {
		next.Framework = *pr.framework
	}
	if pr.agentIP != nil {
		next.AgentIP = *pr.agentIP
	}
	if len(pr.containerIP) > 0 {
		next.ContainerIP = pr.containerIP
	}
	if pr.taskState != nil {
		next.State = *pr.taskState
	}
	if len(pr.ports) > 0 {
		next.Ports = pr.ports
	}

	return next
}

// projectContainerIP picks the status with the maximum timestamp and
// collects every IP-literal string out of its container_status network
// infos. Entries that don't parse as an IP literal (v4 or v6) are silently
// skipped, per the error-handling design: malformed entries must not crash
// the projector.
func projectContainerIP(statuses []mesosapi.TaskStatus) []net.IP {
	st, ok := maxTimestampStatus(statuses)
	if !ok || st.ContainerStatus == nil {
		return nil
	}

	var ips []net.IP
	for _, ni := range st.ContainerStatus.NetworkInfos {
		for _, addr := range ni.IPAddresses {
			if ip := net.ParseIP(addr.IPAddress); ip != nil {
				ips = append(ips, ip)
			}
		}
	}
	return ips
}

// projectState derives a TaskState from the status with the maximum
// timestamp. If no status exists, state is left absent (the merge will
// preserve whatever the task already had, or the zero value TaskStarting for
// a brand-new task).
func projectState(statuses []mesosapi.TaskStatus) *TaskState {
	st, ok := maxTimestampStatus(statuses)
	if !ok {
		return nil
	}

	var ts TaskState
	switch st.State {
	case "TASK_FINISHED", "TASK_FAILED", "TASK_KILLED", "TASK_ERROR", "TASK_DROPPED", "TASK_GONE":
		ts.Kind = TaskTerminal
	case "TASK_RUNNING":
		if st.Healthy != nil {
			ts.Kind = TaskRunningHealthy
			ts.Healthy = *st.Healthy
		} else {
			ts.Kind = TaskRunning
		}
	default:
		ts.Kind = TaskStarting
	}
	return &ts
}

func maxTimestampStatus(statuses []mesosapi.TaskStatus) (mesosapi.TaskStatus, bool) {
	if len(statuses) == 0 {
		return mesosapi.TaskStatus{}, false
	}
	best := statuses[0]
	for _, st := range statuses[1:] {
		if st.Timestamp > best.Timestamp {
			best = st
		}
	}
	return best, true
}

// discoveryPort is one discovery.ports.ports[*] entry after scope and VIP
// labels have been scanned out of it: value is the single port number it
// carries (either a container-scope port or a host-scope port — never
// both), and consumed marks it once a port mapping has merged into it.
type discoveryPort struct {
	value    uint16
	port     TaskPort
	consumed bool
}

// projectPorts computes and merges the two independent port sources:
// container-level port mappings and discovery ports. Discovery ports are
// authoritative for name/VIPs but each carries only one bare port number;
// a port mapping fully describes both the container and host port of the
// same logical port, so a mapping whose container_port or host_port equals
// a discovery port's number is the same port and the two are merged into
// one record. Matching on container_port is tried first (mirroring the
// "(undefined, B, C)" rule before the "(A, undefined, C)" rule), then on
// host_port; unmatched entries from either side stand alone.
func projectPorts(container *mesosapi.ContainerInfo, discovery *mesosapi.DiscoveryInfo) []TaskPort {
	if container == nil && discovery == nil {
		return nil
	}

	var discoveryPorts []*discoveryPort
	if discovery != nil {
		for _, dp := range discovery.Ports.Ports {
			discoveryPorts = append(discoveryPorts, projectDiscoveryPort(dp))
		}
	}

	var out []TaskPort
	for _, pm := range containerPortMappings(container) {
		match := findDiscoveryMatch(discoveryPorts, uint16(pm.ContainerPort), uint16(pm.HostPort))
		if match == nil {
			out = append(out, portFromMapping(pm))
			continue
		}
		match.consumed = true
		merged := match.port
		merged.Port = u16ptr(uint16(pm.ContainerPort))
		merged.HostPort = u16ptr(uint16(pm.HostPort))
		if merged.Protocol == "" {
			merged.Protocol = pm.Protocol
		}
		out = append(out, merged)
	}

	for _, dp := range discoveryPorts {
		if !dp.consumed {
			out = append(out, dp.port)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return taskPortSortKey(out[i]) < taskPortSortKey(out[j])
	})

	if len(out) == 0 {
		return nil
	}
	return out
}

func findDiscoveryMatch(ports []*discoveryPort, containerPort, hostPort uint16) *discoveryPort {
	for _, dp := range ports {
		if !dp.consumed && dp.value == containerPort {
			return dp
		}
	}
	for _, dp := range ports {
		if !dp.consumed && dp.value == hostPort {
			return dp
		}
	}
	return nil
}

func taskPortSortKey(p TaskPort) string {
	var b strings.Builder
	b.WriteString(p.Protocol)
	b.WriteByte('|')
	if p.Port != nil {
		b.WriteString("p")
	}
	if p.HostPort != nil {
		b.WriteString("h")
	}
	b.WriteByte('|')
	b.WriteString(p.Name)
	return b.String()
}

func containerPortMappings(container *mesosapi.ContainerInfo) []mesosapi.PortMapping {
	if container == nil {
		return nil
	}
	switch container.Type {
	case "MESOS":
		var out []mesosapi.PortMapping
		for _, ni := range container.NetworkInfos {
			out = append(out, ni.PortMappings...)
		}
		return out
	case "DOCKER":
		if container.Docker != nil {
			return container.Docker.PortMappings
		}
		return nil
	default: // "HOST" or absent
		return nil
	}
}

func projectDiscoveryPort(dp mesosapi.DiscoveryPort) *discoveryPort {
	port := TaskPort{
		Name:     dp.Name,
		Protocol: dp.Protocol,
	}

	var vips []string
	containerScoped := false
	if dp.Labels != nil {
		for _, l := range dp.Labels.Labels {
			if strings.HasPrefix(l.Key, "VIP") || strings.HasPrefix(l.Key, "vip") {
				vips = append(vips, l.Value)
			}
			if l.Key == "network-scope" && l.Value == "container" {
				containerScoped = true
			}
		}
	}

	n := uint16(dp.Number)
	if containerScoped {
		port.Port = u16ptr(n)
		port.VIPScope = VIPScopeContainer
		port.VIPs = vips
	} else {
		port.HostPort = u16ptr(n)
		port.VIPScope = VIPScopeHost
		port.VIPs = vips
	}
	return &discoveryPort{value: n, port: port}
}

func portFromMapping(pm mesosapi.PortMapping) TaskPort {
	return TaskPort{
		Protocol: pm.Protocol,
		Port:     u16ptr(uint16(pm.ContainerPort)),
		HostPort: u16ptr(uint16(pm.HostPort)),
	}
}
