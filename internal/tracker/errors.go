package tracker

import "errors"

// ErrBadFrame is returned by ParseAndEnqueue when a decoded frame fails to
// parse as a Mesos event envelope — a fatal-to-the-connection error per the
// error handling design: the connection manager reports the stream dead, Run
// returns, and the supervisor above restarts the Tracker fresh.
var ErrBadFrame = errors.New("tracker: malformed event frame")

// ErrWatchdogExpired is returned by Run when the heartbeat watchdog fires:
// no SUBSCRIBED or HEARTBEAT event arrived within 3x the advertised
// interval.
var ErrWatchdogExpired = errors.New("tracker: heartbeat watchdog expired")

// ErrStreamEnded is returned by Run when the connection manager reports the
// upstream stream ended without the caller supplying a more specific cause.
var ErrStreamEnded = errors.New("tracker: upstream stream ended")
