package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown emits one tick per elapsed second (carrying the seconds still
// remaining, down to zero) and then signals expiry exactly once. Stop cancels
// the countdown and suppresses the expiry signal; whichever of natural
// completion or Stop happens first wins.
type Countdown struct {
	ticks    chan int
	expired  chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// startCountdown launches a countdown of the given number of whole seconds
// driven by the supplied clock.
func startCountdown(clock clockwork.Clock, seconds int) *Countdown {
	c := &Countdown{
		ticks:   make(chan int),
		expired: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.run(clock, seconds)
	return c
}

func (c *Countdown) run(clock clockwork.Clock, seconds int) {
	ticker := clock.NewTicker(time.Second)
	defer ticker.Stop()

	remaining := seconds
	for remaining > 0 {
		select {
		case <-ticker.Chan():
			remaining--
			select {
			case c.ticks <- remaining:
			case <-c.stopped:
				return
			}
		case <-c.stopped:
			return
		}
	}
	close(c.expired)
}

// Ticks delivers the remaining seconds after each elapsed second.
func (c *Countdown) Ticks() <-chan int { return c.ticks }

// Expired is closed once the countdown naturally reaches zero.
func (c *Countdown) Expired() <-chan struct{} { return c.expired }

// Stopped is closed once Stop is called.
func (c *Countdown) Stopped() <-chan struct{} { return c.stopped }

// Stop cancels the countdown. No ticks or expiry are emitted afterwards;
// calling Stop more than once, or after expiry, is harmless.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stopped) })
}
