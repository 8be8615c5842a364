// Package state holds the Tracker's exclusively-owned in-memory model: the
// agents/frameworks/tasks collections, the waiting-on-join index, the task
// projector, the diff engine, and the join resolver. Nothing in this package
// is safe for concurrent use — it is designed to be owned by exactly one
// goroutine (the Tracker actor in internal/tracker), matching the
// single-threaded actor model the cluster-state tracker requires.
package state

import "net"

// AgentID, FrameworkID, and TaskID are the opaque Mesos identifiers; they are
// carried as plain strings because Mesos itself treats them as opaque byte
// strings with no further structure.
type AgentID string
type FrameworkID string
type TaskID string

// Agent is a known Mesos worker node. IPv4 is nil when the agent's hostname
// did not parse strictly as an IPv4 literal — the agent is still known, it
// simply has no derived address.
type Agent struct {
	ID   AgentID
	IPv4 net.IP
}

// Framework is a known Mesos tenant. Name is optional; an empty string means
// no name was ever reported for it.
type Framework struct {
	ID   FrameworkID
	Name string
}

// deriveAgentIPv4 returns the agent's IPv4 address iff hostname parses
// strictly as an IPv4 literal (a bare dotted-quad, not a hostname that
// merely resolves to one, and not an IPv6 literal).
func deriveAgentIPv4(hostname string) net.IP {
	ip := net.ParseIP(hostname)
	if ip == nil {
		return nil
	}
	v4 := ip.To4()
	if v4 == nil {
		return nil
	}
	// net.ParseIP("::ffff:1.2.3.4") also produces a non-nil To4() result;
	// guard against that by rejecting any original literal that contains a
	// colon, which bare IPv4 dotted-quads never do and IPv6 forms always do.
	for _, c := range hostname {
		if c == ':' {
			return nil
		}
	}
	return v4
}
