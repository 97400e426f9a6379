package transport

import (
	"time"
)

// Reconnect spaces out connection attempts: After fires no sooner than the
// timeout after the Reconnect was created.
type Reconnect struct {
	start   time.Time
	timeout time.Duration
}

func NewReconnect(timeout time.Duration) *Reconnect {
	return &Reconnect{
		start:   time.Now(),
		timeout: timeout,
	}
}

func (r *Reconnect) After() <-chan time.Time {
	remaining := r.timeout - time.Since(r.start)
	if remaining <= 0 {
		c := make(chan time.Time, 1)
		c <- time.Now()
		return c
	}
	return time.After(remaining)
}
