// Package clock abstracts time so the reconcile loops can be driven by a
// virtual clock in tests. Production code injects Real; tests inject a
// Manual clock and advance it explicitly.
package clock

import "time"

// Clock is the minimal time surface the schedulers need.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

// Real implements Clock with the standard library. All times are UTC.
type Real struct{}

// Now returns the current UTC time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// After mirrors time.After.
func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Sleep blocks for at least d.
func (Real) Sleep(d time.Duration) {
	time.Sleep(d)
}
