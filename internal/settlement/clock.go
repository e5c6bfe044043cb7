package settlement

import (
	"sync"
	"time"
)

// settleClock assigns settlement timestamps that never decrease, even when
// the wall clock steps backwards between commits. Equal-instant commits get
// strictly increasing stamps so descending history order is stable.
type settleClock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *settleClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(c.last) {
		now = c.last.Add(time.Microsecond)
	}
	c.last = now
	return now
}
