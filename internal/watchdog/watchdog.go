// Package watchdog implements the heartbeat liveness timer: armed to
// 3x the Mesos-advertised heartbeat interval, reset on every SUBSCRIBED and
// HEARTBEAT event, and firing C() if nothing resets it in time.
package watchdog

import "time"

// Multiplier is how many heartbeat intervals may elapse before the
// connection is considered dead.
const Multiplier = 3

// Watchdog wraps a time.Timer. The zero value is not usable; construct with
// New.
type Watchdog struct {
	timer *time.Timer
}

// New creates an armed Watchdog with an initial deadline. Typical callers
// arm it immediately with the interval carried by the first SUBSCRIBED
// event.
func New(interval time.Duration) *Watchdog {
	return &Watchdog{timer: time.NewTimer(Multiplier * interval)}
}

// C returns the channel that receives a value when the watchdog fires.
func (w *Watchdog) C() <-chan time.Time {
	return w.timer.C
}

// Reset cancels any pending deadline and arms a fresh one at
// 3 x interval from now, matching the processing time of the SUBSCRIBED or
// HEARTBEAT event that triggered it.
func (w *Watchdog) Reset(interval time.Duration) {
	if !w.timer.Stop() {
		// Timer already fired or was never drained; drain defensively so
		// Reset always starts from a clean channel state.
		select {
		case <-w.timer.C:
		default:
		}
	}
	w.timer.Reset(Multiplier * interval)
}

// Stop disarms the watchdog permanently. Safe to call more than once.
func (w *Watchdog) Stop() {
	if !w.timer.Stop() {
		select {
		case <-w.timer.C:
		default:
		}
	}
}
