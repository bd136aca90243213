package fetcher

import "time"

// Timer is the handle on one scheduled callback. Stop prevents the callback
// from firing if it has not fired yet and reports whether it did so.
type Timer interface {
	Stop() bool
}

// Scheduler schedules single-shot callbacks. The fetcher never blocks waiting
// for a peer: everything that "waits" is a callback scheduled here. The
// production implementation wraps time.AfterFunc; tests substitute one that
// fires on demand.
type Scheduler interface {
	AfterFunc(d time.Duration, cb func()) Timer
}

type realScheduler struct{}

var _ Scheduler = realScheduler{}

func (realScheduler) AfterFunc(d time.Duration, cb func()) Timer {
	return time.AfterFunc(d, cb)
}
