// Package subscriber implements the in-process downstream registry: local
// collaborators (the DNS zone builder, the VIP load-balancer, the overlay
// manager) attach with a handshake, receive a point-in-time snapshot plus
// live deltas, and are dropped the moment their liveness monitor fires.
//
// Registry is designed the way the teacher's agentmanager.Manager and
// websocket.Hub are: a plain map owned by one goroutine (here, the Tracker
// actor), with peer death observed through a channel rather than a lock.
package subscriber

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dcos-net/mesos-tracker/internal/state"
)

// Handle identifies one attached subscriber.
type Handle string

// NewHandle allocates a fresh subscriber handle.
func NewHandle() Handle {
	return Handle(uuid.NewString())
}

// ErrorKind is the handshake rejection reason, matching spec's
// Error(request_ref, wait|init|subscribed) taxonomy.
type ErrorKind string

const (
	ErrKindInit       ErrorKind = "init"
	ErrKindWait       ErrorKind = "wait"
	ErrKindSubscribed ErrorKind = "subscribed"
)

// SubscribeError is returned by Subscribe when the handshake is rejected.
type SubscribeError struct {
	Kind ErrorKind
}

func (e *SubscribeError) Error() string {
	return "subscriber: " + string(e.Kind)
}

// TaskUpdated is one delta delivered to a subscriber after its snapshot.
type TaskUpdated struct {
	Handle Handle
	TaskID state.TaskID
	Task   state.Task
}

const updatesBufferSize = 64

// Registry tracks live subscribers. It must only be touched from the single
// goroutine that owns it (the Tracker actor); the one exception is the
// liveness-watcher goroutine started per peer, which only ever writes to
// removals, never touches the subs map directly.
type Registry struct {
	log *zap.Logger

	ready bool
	subs  map[Handle]chan TaskUpdated

	removals chan Handle
	dropped  uint64
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log:      log.Named("subscriber"),
		subs:     map[Handle]chan TaskUpdated{},
		removals: make(chan Handle, 16),
	}
}

// Activate marks the registry ready to accept subscribers: called once the
// SUBSCRIBED snapshot has been fully applied. Before this, Subscribe replies
// wait.
func (r *Registry) Activate() {
	r.ready = true
}

// Ready reports whether the snapshot has been applied yet.
func (r *Registry) Ready() bool {
	return r.ready
}

// Removals is the channel the Tracker actor selects on alongside its other
// mailbox channels; a Handle arrives here exactly once per peer death,
// because the liveness monitor is installed atomically with the Ok reply in
// Subscribe.
func (r *Registry) Removals() <-chan Handle {
	return r.removals
}

// Subscribe attempts to attach a new peer. liveness is closed (or signaled)
// by the caller's side when the peer dies; the monitor goroutine that
// bridges it to Removals is started before Subscribe returns, so any death
// after a successful Ok is guaranteed to produce exactly one removal.
func (r *Registry) Subscribe(handle Handle, liveness <-chan struct{}, snapshot map[state.TaskID]state.Task) (map[state.TaskID]state.Task, error) {
	if !r.ready {
		return nil, &SubscribeError{Kind: ErrKindWait}
	}
	if _, exists := r.subs[handle]; exists {
		return nil, &SubscribeError{Kind: ErrKindSubscribed}
	}

	updates := make(chan TaskUpdated, updatesBufferSize)
	r.subs[handle] = updates
	go r.watchLiveness(handle, liveness)

	r.log.Debug("subscriber attached", zap.String("handle", string(handle)), zap.Int("snapshot_size", len(snapshot)))
	return snapshot, nil
}

func (r *Registry) watchLiveness(handle Handle, liveness <-chan struct{}) {
	<-liveness
	r.removals <- handle
}

// Remove detaches a peer. Safe to call only from the owning goroutine, in
// response to a value read off Removals.
func (r *Registry) Remove(handle Handle) {
	if ch, ok := r.subs[handle]; ok {
		close(ch)
		delete(r.subs, handle)
		r.log.Debug("subscriber removed", zap.String("handle", string(handle)))
	}
}

// Updates returns the delivery channel for a subscribed peer, or nil if it
// isn't (or is no longer) attached.
func (r *Registry) Updates(handle Handle) <-chan TaskUpdated {
	return r.subs[handle]
}

// Publish fans a task delta out to every attached subscriber. Delivery is
// best-effort and non-blocking: a subscriber whose buffer is full has the
// delta dropped rather than stalling the Tracker actor, which would violate
// the single-threaded, non-blocking mailbox model.
func (r *Registry) Publish(id state.TaskID, task state.Task) {
	for handle, ch := range r.subs {
		select {
		case ch <- TaskUpdated{Handle: handle, TaskID: id, Task: task}:
		default:
			r.dropped++
			r.log.Warn("dropped update for slow subscriber",
				zap.String("handle", string(handle)),
				zap.String("task_id", string(id)),
			)
		}
	}
}

func (r *Registry) Count() int     { return len(r.subs) }
func (r *Registry) Dropped() uint64 { return r.dropped }
