package risk

import (
	"sync"
	"time"
)

// Throttle bounds order submissions to at most Max per sliding Window. It
// measures elapsed time against a fixed base with time.Since, so a wall-clock
// jump (NTP step, DST) can never open or starve the window.
type Throttle struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	base   time.Time       // monotonic anchor
	marks  []time.Duration // offsets from base, oldest first
}

func NewThrottle(max int, window time.Duration) *Throttle {
	return &Throttle{max: max, window: window, base: time.Now()}
}

// Allow reports whether another submission fits in the current window.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
	return len(t.marks) < t.max
}

// Record counts one submission against the window. Callers check Allow first;
// Record never blocks.
func (t *Throttle) Record() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
	t.marks = append(t.marks, time.Since(t.base))
}

func (t *Throttle) pruneLocked() {
	cutoff := time.Since(t.base) - t.window
	i := 0
	for i < len(t.marks) && t.marks[i] <= cutoff {
		i++
	}
	t.marks = t.marks[i:]
}
