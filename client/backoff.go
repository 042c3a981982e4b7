package client

import "time"

const (
	defaultInitialReconnectDelay = 1 * time.Second
	defaultMaxReconnectDelay     = 30 * time.Second
)

// backoff produces the reconnect delay schedule: exponential from the
// initial delay, doubling per attempt, capped at the maximum.
type backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	if initial <= 0 {
		initial = defaultInitialReconnectDelay
	}
	if max <= 0 {
		max = defaultMaxReconnectDelay
	}
	if max < initial {
		max = initial
	}
	return &backoff{initial: initial, max: max, next: initial}
}

// Next returns the delay to wait before the upcoming attempt and advances
// the schedule.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

// Reset returns the schedule to the initial delay. Called after a
// successful open.
func (b *backoff) Reset() {
	b.next = b.initial
}
