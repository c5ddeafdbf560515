package assistant

import (
	"sync"
	"time"
)

// Continuous re-enters listening a short delay after the assistant stops
// speaking. The delay keeps the microphone from hearing the tail of the
// device's own output.
type Continuous struct {
	enabled   bool
	delay     time.Duration
	canResume func() bool
	resume    func()

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

func NewContinuous(enabled bool, delay time.Duration, canResume func() bool, resume func()) *Continuous {
	return &Continuous{enabled: enabled, delay: delay, canResume: canResume, resume: resume}
}

// Schedule replaces any earlier schedule. It reports whether a resume was armed.
func (c *Continuous) Schedule() bool {
	if !c.enabled {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(c.delay, func() { c.fire(gen) })
	return true
}

func (c *Continuous) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	// the session may have closed during the delay
	if !c.canResume() {
		return
	}
	c.resume()
}

func (c *Continuous) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Continuous) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}
