package session

import (
	"context"
	"time"
)

// RunDurationClock recomputes the elapsed call time once per second until
// the context is done or the session is closed. Each tick subtracts from the
// wall clock rather than accumulating increments, so timer jitter never
// drifts the reading.
func (s *Session) RunDurationClock(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.Tick(s.now())
		}
	}
}
