// Package clock lets the kiosk schedule its fire-once tasks (camera resume,
// result auto-hide) against an injectable time source, so tests can move time
// forward deterministically instead of sleeping.
package clock

import "time"

// Clock is the subset of the time package the kiosk depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f once after d has elapsed. The returned Timer can
	// cancel the call if it has not fired yet.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a scheduled call created by AfterFunc.
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. It reports whether the call was still
// pending.
func (t *Timer) Stop() bool { return t.stop() }
