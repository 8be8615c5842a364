// Package tracker implements the single-threaded actor at the center of the
// cluster-state tracker: one select loop over its mailbox channels, owning
// the entity store, the subscriber registry, and the heartbeat watchdog.
// This mirrors the teacher's executor.Run worker-loop shape (a select
// between ctx.Done() and a work channel), generalized from one queue to
// several mailbox channels.
package tracker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dcos-net/mesos-tracker/internal/mesosapi"
	"github.com/dcos-net/mesos-tracker/internal/state"
	"github.com/dcos-net/mesos-tracker/internal/subscriber"
	"github.com/dcos-net/mesos-tracker/internal/watchdog"
)

// SubscribeRequest is the {subscribe, peer, ref} mailbox message: a local
// collaborator asking to attach, with Reply used to deliver exactly one
// SubscribeReply.
type SubscribeRequest struct {
	Handle   subscriber.Handle
	Liveness <-chan struct{}
	Reply    chan<- SubscribeReply
}

// SubscribeReply is the handshake response: either a snapshot (attached) or
// an error (wait/init/subscribed, per subscriber.ErrorKind).
type SubscribeReply struct {
	Snapshot map[state.TaskID]state.Task
	Err      error
}

// Tracker is the actor. Construct with New, then run it with Run; mailbox
// channels are obtained via Envelopes/SubscribeRequests/StreamDone and must be
// fed exclusively by the connection manager and downstream callers — the
// Tracker itself never blocks on sending to them.
type Tracker struct {
	log      *zap.Logger
	store    *state.Store
	registry *subscriber.Registry
	metrics  MetricsSink

	watchdog          *watchdog.Watchdog
	heartbeatInterval time.Duration

	chunks            chan mesosapi.Envelope
	subscribeRequests chan SubscribeRequest
	streamDone        chan error
}

func New(log *zap.Logger, store *state.Store, registry *subscriber.Registry, metrics MetricsSink) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		log:               log.Named("tracker"),
		store:             store,
		registry:          registry,
		metrics:           metrics,
		chunks:            make(chan mesosapi.Envelope),
		subscribeRequests: make(chan SubscribeRequest),
		streamDone:        make(chan error, 1),
	}
}

// Envelopes is the mailbox channel the connection manager feeds decoded
// frames into, one at a time, back-pressure applied by the unbuffered
// channel itself (the manager cannot push the next frame until the Tracker
// has accepted this one).
func (t *Tracker) Envelopes() chan<- mesosapi.Envelope { return t.chunks }

// SubscribeRequests is the mailbox channel local collaborators send
// attach requests on.
func (t *Tracker) SubscribeRequests() chan<- SubscribeRequest { return t.subscribeRequests }

// StreamDone is the mailbox channel backing ReportStreamDone; exposed
// directly so tests can simulate stream death without going through the
// connection manager.
func (t *Tracker) StreamDone() chan<- error { return t.streamDone }

// ReportStreamDone satisfies connection.FrameSink. The connection manager
// calls it once the subscribe stream ends after a successful start — stream
// death is fatal to the Tracker by design, regardless of cause, so Run
// returns and an external supervisor restarts the whole program fresh.
func (t *Tracker) ReportStreamDone(err error) {
	select {
	case t.streamDone <- err:
	default:
	}
}

// Run processes the mailbox until ctx is cancelled or a fatal condition
// occurs (bad frame, watchdog expiry, stream death). It always returns a
// non-nil error on an abnormal exit, and ctx.Err() on a clean cancellation.
func (t *Tracker) Run(ctx context.Context) error {
	defer func() {
		if t.watchdog != nil {
			t.watchdog.Stop()
		}
	}()

	for {
		var watchdogC <-chan time.Time
		if t.watchdog != nil {
			watchdogC = t.watchdog.C()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case env := <-t.chunks:
			if err := t.handleEnvelope(env); err != nil {
				return err
			}

		case req := <-t.subscribeRequests:
			t.handleSubscribe(req)

		case handle := <-t.registry.Removals():
			t.registry.Remove(handle)
			t.reportGauges()

		case err := <-t.streamDone:
			if err == nil {
				err = ErrStreamEnded
			}
			return err

		case <-watchdogC:
			t.log.Error("heartbeat watchdog expired")
			return ErrWatchdogExpired
		}
	}
}

func (t *Tracker) handleEnvelope(env mesosapi.Envelope) error {
	if t.metrics != nil {
		t.metrics.EventProcessed(env.Type)
	}

	interval := t.dispatch(env)
	if interval > 0 {
		t.heartbeatInterval = interval
	}

	if (env.Type == mesosapi.EventSubscribed || env.Type == mesosapi.EventHeartbeat) && t.heartbeatInterval > 0 {
		if t.watchdog == nil {
			t.watchdog = watchdog.New(t.heartbeatInterval)
		} else {
			t.watchdog.Reset(t.heartbeatInterval)
		}
	}

	t.reportGauges()
	return nil
}

func (t *Tracker) handleSubscribe(req SubscribeRequest) {
	snapshot, err := t.registry.Subscribe(req.Handle, req.Liveness, t.store.Tasks())
	if err != nil {
		req.Reply <- SubscribeReply{Err: err}
		return
	}
	req.Reply <- SubscribeReply{Snapshot: snapshot}
	t.reportGauges()
}

func (t *Tracker) reportGauges() {
	if t.metrics == nil {
		return
	}
	t.metrics.Gauges(
		t.store.AgentCount(),
		t.store.FrameworkCount(),
		t.store.TaskCount(),
		t.store.WaitingCount(),
		t.registry.Count(),
	)
}

// ParseAndEnqueue decodes a raw RecordIO frame and sends it to the mailbox,
// blocking until the Tracker accepts it or ctx is cancelled. It is the glue
// the connection manager calls for every frame the decoder yields.
func (t *Tracker) ParseAndEnqueue(ctx context.Context, frame []byte) error {
	env, err := mesosapi.ParseEnvelope(frame)
	if err != nil {
		if t.metrics != nil {
			t.metrics.FrameDropped()
		}
		return fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	select {
	case t.chunks <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
