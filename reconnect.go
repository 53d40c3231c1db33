package quadrant

import (
	mathrand "math/rand"
	"time"
)

// jittered wait between reconnect attempts.
// the timeout grows with the attempt count; jitter spreads reconnect
// storms when many clients lose the same server.
type Reconnect struct {
	timeout time.Duration
}

func NewReconnect(timeout time.Duration) *Reconnect {
	return &Reconnect{
		timeout: timeout,
	}
}

func (self *Reconnect) After() <-chan time.Time {
	jitter := time.Duration(mathrand.Int63n(int64(self.timeout)/2 + 1))
	return time.After(self.timeout/2 + jitter)
}
