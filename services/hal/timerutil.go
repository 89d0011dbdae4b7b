package hal

import (
	"time"

	"envsense-go/x/mathx"
)

// resetTimer re-arms a timer that may or may not have fired, draining a
// pending tick first so the next receive sees only the new deadline.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		drainTimer(t)
	}
	t.Reset(mathx.Max(d, 0))
}

func drainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
