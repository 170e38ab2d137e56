package stream

import "time"

// Clock abstracts wall time so the session's debounce and flash timers can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules fn after d and returns a handle that can be reset
	// or stopped.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable, resettable single-shot timer handle.
type Timer interface {
	Reset(d time.Duration) bool
	Stop() bool
}

type realClock struct{}

// NewRealClock returns a Clock backed by the runtime timers.
func NewRealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return realTimer{timer: time.AfterFunc(d, fn)}
}

type realTimer struct {
	timer *time.Timer
}

func (t realTimer) Reset(d time.Duration) bool {
	return t.timer.Reset(d)
}

func (t realTimer) Stop() bool {
	return t.timer.Stop()
}
