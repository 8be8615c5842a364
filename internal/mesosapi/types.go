// Package mesosapi defines the wire-format JSON shapes of the Mesos v1
// Operator API SUBSCRIBE event stream — only the fields named in the
// component design are decoded; everything else Mesos sends is ignored by
// omission, which encoding/json already does for free.
package mesosapi

import "encoding/json"

// EventType identifies the kind of a decoded Operator API event.
type EventType string

const (
	EventSubscribed       EventType = "SUBSCRIBED"
	EventHeartbeat        EventType = "HEARTBEAT"
	EventTaskAdded        EventType = "TASK_ADDED"
	EventTaskUpdated      EventType = "TASK_UPDATED"
	EventFrameworkAdded   EventType = "FRAMEWORK_ADDED"
	EventFrameworkUpdated EventType = "FRAMEWORK_UPDATED"
	EventFrameworkRemoved EventType = "FRAMEWORK_REMOVED"
	EventAgentAdded       EventType = "AGENT_ADDED"
	EventAgentRemoved     EventType = "AGENT_REMOVED"
)

// Envelope is the outer shape of every decoded frame: a discriminator field
// plus one optional typed pointer per payload kind. Unmarshal fills whichever
// payloads the frame carries; the dispatcher reads the one matching Type.
type Envelope struct {
	Type EventType `json:"type"`

	Subscribed       *SubscribedPayload       `json:"subscribed,omitempty"`
	TaskAdded        *TaskAddedPayload        `json:"task_added,omitempty"`
	TaskUpdated      *TaskUpdatedPayload      `json:"task_updated,omitempty"`
	FrameworkAdded   *FrameworkAddedPayload   `json:"framework_added,omitempty"`
	FrameworkUpdated *FrameworkUpdatedPayload `json:"framework_updated,omitempty"`
	FrameworkRemoved *FrameworkRemovedPayload `json:"framework_removed,omitempty"`
	AgentAdded       *AgentAddedPayload       `json:"agent_added,omitempty"`
	AgentRemoved     *AgentRemovedPayload     `json:"agent_removed,omitempty"`
}

// SubscribedPayload is the body of the initial SUBSCRIBED event: the
// heartbeat interval plus a full snapshot of agents, frameworks, and tasks.
type SubscribedPayload struct {
	HeartbeatIntervalSeconds float64 `json:"heartbeat_interval_seconds"`
	GetAgents                struct {
		Agents []AgentInfoWrapper `json:"agents"`
	} `json:"get_agents"`
	GetFrameworks struct {
		Frameworks []FrameworkInfoWrapper `json:"frameworks"`
	} `json:"get_frameworks"`
	GetTasks struct {
		Tasks []TaskInfo `json:"tasks"`
	} `json:"get_tasks"`
}

// TaskAddedPayload carries a full TaskInfo object.
type TaskAddedPayload struct {
	Task TaskInfo `json:"task"`
}

// TaskUpdatedPayload carries a partial view: a TaskStatus plus the owning
// framework id merged alongside it. Unlike TASK_ADDED, there is no full
// TaskInfo here — the projector must merge this into whatever it already
// knows about the task (spec: projection is "merge-style").
type TaskUpdatedPayload struct {
	FrameworkID IDValue    `json:"framework_id"`
	Status      TaskStatus `json:"status"`
}

// FrameworkInfoWrapper / FrameworkAddedPayload / FrameworkUpdatedPayload all
// bottom out at the same FrameworkInfo shape, just nested differently
// depending on which event carries it.
type FrameworkInfoWrapper struct {
	FrameworkInfo FrameworkInfo `json:"framework_info"`
}

type FrameworkAddedPayload struct {
	Framework FrameworkInfoWrapper `json:"framework"`
}

type FrameworkUpdatedPayload struct {
	Framework FrameworkInfoWrapper `json:"framework"`
}

type FrameworkRemovedPayload struct {
	FrameworkInfo struct {
		ID IDValue `json:"id"`
	} `json:"framework_info"`
}

type FrameworkInfo struct {
	ID   IDValue `json:"id"`
	Name string  `json:"name"`
}

// AgentInfoWrapper / AgentAddedPayload bottom out at AgentInfo.
type AgentInfoWrapper struct {
	AgentInfo AgentInfo `json:"agent_info"`
}

type AgentAddedPayload struct {
	Agent AgentInfoWrapper `json:"agent"`
}

type AgentRemovedPayload struct {
	AgentID IDValue `json:"agent_id"`
}

type AgentInfo struct {
	ID       IDValue `json:"id"`
	Hostname string  `json:"hostname"`
}

// IDValue is the common { "value": "..." } wrapper Mesos uses for every
// opaque identifier (AgentID, FrameworkID, TaskID).
type IDValue struct {
	Value string `json:"value"`
}

// TaskInfo is the full task description carried by TASK_ADDED and the
// get_tasks snapshot.
type TaskInfo struct {
	TaskID      IDValue        `json:"task_id"`
	Name        string         `json:"name"`
	FrameworkID IDValue        `json:"framework_id"`
	AgentID     IDValue        `json:"agent_id"`
	Statuses    []TaskStatus   `json:"statuses"`
	Container   *ContainerInfo `json:"container"`
	Discovery   *DiscoveryInfo `json:"discovery"`
}

// TaskStatus is one status record; a task may carry several (spec: pick the
// one with the maximum timestamp).
type TaskStatus struct {
	TaskID          IDValue          `json:"task_id"`
	AgentID         *IDValue         `json:"agent_id"`
	State           string           `json:"state"`
	Healthy         *bool            `json:"healthy"`
	Timestamp       float64          `json:"timestamp"`
	ContainerStatus *ContainerStatus `json:"container_status"`
}

type ContainerStatus struct {
	NetworkInfos []NetworkInfo `json:"network_infos"`
}

type NetworkInfo struct {
	IPAddresses  []IPAddress   `json:"ip_addresses"`
	PortMappings []PortMapping `json:"port_mappings"`
}

type IPAddress struct {
	IPAddress string `json:"ip_address"`
}

// ContainerInfo carries the container-level port mappings, whose source
// differs by container type.
type ContainerInfo struct {
	Type   string `json:"type"` // "DOCKER", "MESOS", "HOST", or absent
	Docker *struct {
		PortMappings []PortMapping `json:"port_mappings"`
	} `json:"docker"`
	NetworkInfos []NetworkInfo `json:"network_infos"`
}

// PortMapping is a single container-level port mapping (from
// container.network_infos[*].port_mappings or container.docker.port_mappings).
type PortMapping struct {
	ContainerPort uint32 `json:"container_port"`
	HostPort      uint32 `json:"host_port"`
	Protocol      string `json:"protocol"`
}

// DiscoveryInfo carries the discovery ports, which are authoritative for
// names and VIP labels.
type DiscoveryInfo struct {
	Ports struct {
		Ports []DiscoveryPort `json:"ports"`
	} `json:"ports"`
}

type DiscoveryPort struct {
	Number   uint32 `json:"number"`
	Protocol string `json:"protocol"`
	Name     string `json:"name"`
	Labels   *struct {
		Labels []Label `json:"labels"`
	} `json:"labels"`
}

type Label struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ParseEnvelope decodes a single RecordIO frame into an Envelope.
func ParseEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
