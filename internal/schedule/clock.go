package schedule

import (
	"sync"
	"time"
)

// Clock yields canonical time: the local clock shifted by the last measured
// server offset. Safe for concurrent use.
type Clock struct {
	mu     sync.RWMutex
	local  func() time.Time
	offset time.Duration
}

// NewClock creates a clock over local. A nil local uses time.Now.
func NewClock(local func() time.Time) *Clock {
	if local == nil {
		local = time.Now
	}
	return &Clock{local: local}
}

// Now returns local now plus the server offset.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.local().Add(c.offset)
}

// Offset returns the current server offset.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// Sync records serverTime - clientNow as the new offset.
func (c *Clock) Sync(serverTime, clientNow time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = serverTime.Sub(clientNow)
	return c.offset
}

// SetOffset overrides the offset directly.
func (c *Clock) SetOffset(d time.Duration) {
	c.mu.Lock()
	c.offset = d
	c.mu.Unlock()
}
