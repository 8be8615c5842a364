// Package connection implements the Mesos Operator API SUBSCRIBE session:
// issuing the request, classifying the first response, and streaming the
// RecordIO body into the Tracker one frame at a time. Reconnection uses a
// fixed, jittered backoff — deliberately not the exponential backoff the
// teacher's connection manager uses, per this service's own retry policy.
package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dcos-net/mesos-tracker/internal/frame"
	"github.com/dcos-net/mesos-tracker/internal/resolver"
)

const (
	// dialTimeout bounds only the wait for response headers; once the 2xx
	// stream starts, the body is read without a further deadline.
	dialTimeout = 5 * time.Second

	// backoff is fixed, not exponential: "reconnect backoff: fixed 100 ms
	// on redirect or failure; no exponential backoff is specified."
	backoff        = 100 * time.Millisecond
	jitterFraction = 0.2

	readBufferSize = 32 * 1024
)

// ErrNotLeader signals the contacted master answered with a 307 redirect:
// it is not the current leader. Recoverable and silent — no log line, just
// a retry after the fixed backoff.
var ErrNotLeader = errors.New("connection: contacted master is not the leader")

// ErrConnectTimeout signals no response headers arrived within dialTimeout.
var ErrConnectTimeout = errors.New("connection: timed out waiting for subscribe response")

// ErrTransport wraps a lower-level HTTP/network failure.
var ErrTransport = errors.New("connection: transport error")

// ErrBadFormat wraps a frame decoder failure encountered mid-stream.
var ErrBadFormat = errors.New("connection: malformed frame in subscribe stream")

// ErrStreamDied marks every way the subscribe stream can end once it has
// actually started (a 2xx response received and body streaming underway):
// a transport error mid-read, a bad frame, or even a clean EOF. All three
// are fatal to the current connection, not merely recoverable — the stream
// process dying terminates the Tracker actor so an external supervisor can
// restart the whole program with a fresh init. Errors before the stream
// starts (redirects, non-2xx statuses, connect timeouts, dial failures)
// never carry this sentinel and remain ordinary retry-and-log conditions.
var ErrStreamDied = errors.New("connection: subscribe stream ended after start")

// ErrUpstreamStatus is returned for any non-307 non-2xx response.
type ErrUpstreamStatus struct {
	Code int
}

func (e *ErrUpstreamStatus) Error() string {
	return fmt.Sprintf("connection: unexpected subscribe response status %d", e.Code)
}

// FrameSink is what the connection manager feeds decoded frames into — the
// Tracker actor's mailbox, in production; a recording fake in tests.
type FrameSink interface {
	ParseAndEnqueue(ctx context.Context, frame []byte) error

	// ReportStreamDone tells the sink the subscribe stream ended after a
	// successful start (see ErrStreamDied). The Tracker treats this as
	// fatal and terminates regardless of the underlying cause.
	ReportStreamDone(err error)
}

// Manager runs the SUBSCRIBE reconnect loop. Construct with New and call
// Run from its own goroutine; Run blocks until ctx is cancelled or the
// subscribe stream dies after having started.
type Manager struct {
	log      *zap.Logger
	client   *http.Client
	resolver resolver.MasterResolver
	sink     FrameSink

	onReconnect func()     // optional hook, used by obsmetrics to count reconnects
	onConnected func(bool) // optional hook, used by obsmetrics to track stream state
}

func New(log *zap.Logger, client *http.Client, res resolver.MasterResolver, sink FrameSink) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{
		log:      log.Named("connection"),
		client:   client,
		resolver: res,
		sink:     sink,
	}
}

// OnReconnect registers a callback invoked at the start of every connection
// attempt after the first.
func (m *Manager) OnReconnect(fn func()) { m.onReconnect = fn }

// OnConnected registers a callback invoked with true once a subscribe
// response starts streaming, and with false when that stream ends for any
// reason. Used by obsmetrics to keep the connected gauge truthful.
func (m *Manager) OnConnected(fn func(bool)) { m.onConnected = fn }

// Run loops: resolve the master, subscribe, stream until the session ends,
// then retry after a fixed jittered backoff — for the recoverable error
// classes only. It returns when ctx is cancelled, or when the subscribe
// stream dies after having started (ErrStreamDied), which is fatal and
// reported to the sink rather than retried.
func (m *Manager) Run(ctx context.Context) error {
	first := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !first && m.onReconnect != nil {
			m.onReconnect()
		}
		first = false

		err := m.connectOnce(ctx)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case errors.Is(err, ErrNotLeader):
			// Recoverable, silent: no log line.
		case errors.Is(err, ErrStreamDied):
			// Fatal to the current connection: the stream died after it
			// had already started (bad frame, mid-read transport error,
			// or even a clean EOF). Report it and stop — retrying here
			// would paper over a condition the Tracker actor is supposed
			// to die from, leaving state that should be rebuilt on a
			// fresh init stuck stale instead.
			m.log.Error("subscribe stream died after start; terminating", zap.Error(err))
			m.sink.ReportStreamDone(err)
			return err
		default:
			m.log.Error("subscribe session ended", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(backoff)):
		}
	}
}

func (m *Manager) connectOnce(ctx context.Context) error {
	masterURL, err := m.resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("connection: resolve master: %w", err)
	}

	body, err := json.Marshal(map[string]string{"type": "SUBSCRIBE"})
	if err != nil {
		return fmt.Errorf("connection: encode subscribe body: %w", err)
	}

	endpoint := masterURL.String() + "/api/v1"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("connection: build subscribe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// dialCtx bounds only the wait for headers: it inherits cancellation
	// from ctx but also has its own timer, which we disarm the instant
	// headers arrive so the ensuing body stream isn't bound by it.
	dialCtx, cancelDial := context.WithCancel(ctx)
	defer cancelDial()
	timer := time.AfterFunc(dialTimeout, cancelDial)

	resp, err := m.client.Do(req.WithContext(dialCtx))
	timer.Stop()
	if err != nil {
		if dialCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("%w", ErrConnectTimeout)
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTemporaryRedirect:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return ErrNotLeader
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return &ErrUpstreamStatus{Code: resp.StatusCode}
	}

	if m.onConnected != nil {
		m.onConnected(true)
	}
	defer func() {
		if m.onConnected != nil {
			m.onConnected(false)
		}
	}()

	streamErr := m.streamSession(ctx, resp.Body)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// The caller is shutting the manager down; that, not the stream
		// itself, explains why streamSession returned.
		return ctxErr
	}
	if streamErr != nil {
		return fmt.Errorf("%w: %w", ErrStreamDied, streamErr)
	}
	return fmt.Errorf("%w: clean EOF", ErrStreamDied)
}

// streamSession pipelines the RecordIO read off the wire and its decode in
// two concurrent stages, mirroring the teacher's dual-goroutine connect()
// shape (heartbeatLoop + jobStreamLoop racing on an error channel): one
// goroutine does nothing but read bytes off the body, the other decodes
// frames and enqueues them to the sink. Splitting them means a slow
// decode/enqueue never stalls the socket read, and a decode failure can
// force-close body to unblock a pending Read immediately rather than
// waiting for the next chunk to arrive on its own.
func (m *Manager) streamSession(ctx context.Context, body io.ReadCloser) error {
	chunks := make(chan []byte, 4)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(chunks)
		return m.readChunks(gctx, body, chunks)
	})
	g.Go(func() error {
		return m.decodeAndDispatch(gctx, chunks, body)
	})

	return g.Wait()
}

func (m *Manager) readChunks(ctx context.Context, body io.Reader, chunks chan<- []byte) error {
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrTransport, readErr)
		}
	}
}

func (m *Manager) decodeAndDispatch(ctx context.Context, chunks <-chan []byte, body io.Closer) error {
	dec := frame.NewDecoder()
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return nil
			}
			frames, decErr := dec.Feed(chunk)
			if decErr != nil {
				body.Close() //nolint:errcheck
				return fmt.Errorf("%w: %v", ErrBadFormat, decErr)
			}
			for _, f := range frames {
				if err := m.sink.ParseAndEnqueue(ctx, f); err != nil {
					body.Close() //nolint:errcheck
					return err
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// jitter applies +/-jitterFraction of randomness to a fixed base duration.
// It never escalates base itself — that is the point of the fixed-backoff
// policy — it only avoids every reconnecting client retrying in lockstep.
func jitter(base time.Duration) time.Duration {
	delta := time.Duration(float64(base) * jitterFraction)
	if delta <= 0 {
		return base
	}
	offset := time.Duration(rand.Int63n(int64(2*delta+1))) - delta
	d := base + offset
	if d < 0 {
		return 0
	}
	return d
}
