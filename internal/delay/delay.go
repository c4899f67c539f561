// Package delay computes reproducible send delays. The same trigger id and
// window always yield the same delay, across retries and process restarts.
package delay

import (
	"hash/fnv"
	"time"
)

// DefaultPastBuffer is added to now when a computed run time already passed.
const DefaultPastBuffer = 30 * time.Second

// Window is an inclusive [Min, Max] range in seconds.
type Window struct {
	Min int
	Max int
}

// Enabled reports whether the window asks for any delay at all.
func (w Window) Enabled() bool {
	return w.Min > 0 || w.Max > 0
}

// Compute maps triggerID onto a delay in seconds within [min, max].
// When max < min the window collapses to min.
func Compute(triggerID string, min, max int) int {
	if min < 0 {
		min = 0
	}
	if max <= min {
		return min
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(triggerID))

	span := uint64(max-min) + 1
	return min + int(uint64(h.Sum32())%span)
}

// RunAt returns inbound+delay, pushed to now+buffer when that is already
// in the past. A zero inbound time counts from now.
func RunAt(inbound, now time.Time, delaySeconds int, buffer time.Duration) time.Time {
	if inbound.IsZero() {
		inbound = now
	}
	if buffer <= 0 {
		buffer = DefaultPastBuffer
	}

	runAt := inbound.Add(time.Duration(delaySeconds) * time.Second)
	if runAt.Before(now) {
		return now.Add(buffer)
	}
	return runAt
}
