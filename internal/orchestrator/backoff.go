package orchestrator

import "time"

// BackoffPolicy is the geometric poll schedule used while a job is in
// flight: start at Initial, multiply each round, never exceed Cap. It is
// injected so tests can run the supervisor with millisecond intervals.
type BackoffPolicy struct {
	Initial    time.Duration
	Multiplier float64
	Cap        time.Duration
}

// DefaultBackoff bounds provider request volume while keeping latency
// reasonable for short jobs.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Initial:    2 * time.Second,
		Multiplier: 2.0,
		Cap:        30 * time.Second,
	}
}

// Next returns the interval that follows current.
func (b BackoffPolicy) Next(current time.Duration) time.Duration {
	if current <= 0 {
		return b.Initial
	}
	next := time.Duration(float64(current) * b.Multiplier)
	if next > b.Cap {
		return b.Cap
	}
	return next
}

// Clock abstracts time for the supervisor so polling can be tested without
// real timers.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now().UTC() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }
