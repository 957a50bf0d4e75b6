package netio

import "time"

// MonotonicClock is the real Clock backend, built on time.AfterFunc.
// Every armed deadline funnels its firing into a single channel, which
// the reactor's timer pump drains (spec §4.8: "each channel handler
// drains the channel fully").
type MonotonicClock struct {
	fired chan time.Time
}

// NewMonotonicClock returns a Clock whose Chan() is buffered deeply enough
// that a burst of simultaneously-expiring deadlines doesn't block the
// timers firing them.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{fired: make(chan time.Time, 256)}
}

func (c *MonotonicClock) Now() time.Time { return time.Now() }

func (c *MonotonicClock) Arm(deadline time.Time) {
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	time.AfterFunc(d, func() {
		c.fired <- time.Now()
	})
}

func (c *MonotonicClock) Chan() <-chan time.Time { return c.fired }
