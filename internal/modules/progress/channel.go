// Package progress carries percent/status updates for the stage that is currently running.
//
// The engine pushes updates without saying which stage they belong to, so the
// owner must call Reset before every stage.
package progress

import "sync"

// Update is one progress notification.
type Update struct {
	Percent float64 `json:"percent"`
	Status  string  `json:"status"`
}

// Channel fans updates out to subscribers and remembers the latest one.
type Channel struct {
	mu      sync.Mutex
	current Update
	nextID  int
	subs    map[int]func(Update)
}

// NewChannel creates a channel at 0%
func NewChannel() *Channel {
	return &Channel{subs: make(map[int]func(Update))}
}

// Subscribe registers fn for every later update. The returned function
// removes it and is safe to call more than once.
func (c *Channel) Subscribe(fn func(Update)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Reset sets progress back to 0 with empty status and notifies subscribers.
func (c *Channel) Reset() {
	c.publish(Update{})
}

// Push records u, clamped to 0..100, and notifies subscribers.
func (c *Channel) Push(u Update) {
	if u.Percent < 0 {
		u.Percent = 0
	}
	if u.Percent > 100 {
		u.Percent = 100
	}
	c.publish(u)
}

// Current returns the latest update
func (c *Channel) Current() Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Subscribers returns the number of registered callbacks
func (c *Channel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Channel) publish(u Update) {
	c.mu.Lock()
	c.current = u
	fns := make([]func(Update), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(u)
	}
}
