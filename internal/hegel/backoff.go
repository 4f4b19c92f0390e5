package hegel

import (
	"context"
	"time"
)

// Schedule is the delay before each connection attempt, the last value repeats indefinitely.
type Schedule []time.Duration

// DefaultSchedule waits 0, 1, 2, 5, 10, 10, ... seconds between attempts.
var DefaultSchedule = Schedule{0, 1 * time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second}

// Delay returns the delay before the zero based attempt.
func (s Schedule) Delay(attempt int) time.Duration {
	if len(s) == 0 {
		return 0
	}

	if attempt >= len(s) {
		return s[len(s)-1]
	}

	return s[attempt]
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
