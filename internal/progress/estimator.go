// Package progress derives fractional progress and a remaining-time
// estimate for an in-flight generation job. Estimate is pure so the
// supervisor can call it on every poll without extra bookkeeping.
package progress

import (
	"math"
	"time"
)

// timeDerivedCap keeps elapsed-time progress below 100% until the provider
// actually reports terminal success.
const timeDerivedCap = 0.99

// expectedDurations maps provider kind to the typical job wall-clock time,
// used when the provider reports no native progress.
var expectedDurations = map[string]time.Duration{
	"runway": 2 * time.Minute,
	"veo":    3 * time.Minute,
}

const defaultExpectedDuration = 2 * time.Minute

// Estimate computes the progress fraction and ETA in seconds for a job.
// A native provider hint wins over the elapsed-time heuristic but is
// clamped to [current, 1] so reported progress never moves backwards
// within an attempt.
func Estimate(elapsed time.Duration, providerKind string, hint *float64, current float64) (float64, int) {
	expected, ok := expectedDurations[providerKind]
	if !ok {
		expected = defaultExpectedDuration
	}

	var p float64
	if hint != nil {
		p = clamp(*hint, current, 1)
	} else {
		p = elapsed.Seconds() / expected.Seconds()
		p = clamp(p, current, timeDerivedCap)
	}

	return p, eta(elapsed, p)
}

// eta extrapolates remaining seconds from elapsed time and the current
// fraction. With no measurable progress yet it reports the unknown-but-
// bounded default of one expected duration.
func eta(elapsed time.Duration, p float64) int {
	if p >= 1 {
		return 0
	}
	if p <= 0 || elapsed <= 0 {
		return int(defaultExpectedDuration.Seconds())
	}
	total := elapsed.Seconds() / p
	remaining := total - elapsed.Seconds()
	if remaining < 0 {
		remaining = 0
	}
	return int(math.Round(remaining))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
