package session

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// CountdownListener receives the events of a room countdown. Calls come
// from the countdown goroutine, one at a time.
type CountdownListener interface {
	Tick(room *Room, secondsRemaining int)
	// Expired fires once when the remaining time first reaches zero.
	Expired(room *Room)
	// Deadline fires after the grace window that follows Expired.
	Deadline(room *Room)
}

// Countdown drives the timer of one room.
type Countdown struct {
	room     *Room
	interval time.Duration
	grace    time.Duration
	listener CountdownListener
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	expired  atomic.Bool
}

func newCountdown(room *Room, interval, grace time.Duration, listener CountdownListener, now func() time.Time) *Countdown {
	return &Countdown{
		room:     room,
		interval: interval,
		grace:    grace,
		listener: listener,
		now:      now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *Countdown) start() {
	go c.run()
}

func (c *Countdown) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	last := math.MaxInt
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			select {
			case <-c.stop:
				return
			default:
			}
		}

		// A clock step backwards must not make the countdown go up.
		secs := min(c.room.SecondsRemaining(c.now()), last)
		last = secs

		if secs > 0 {
			c.listener.Tick(c.room, secs)
			continue
		}

		if !c.expired.CompareAndSwap(false, true) {
			return
		}
		c.listener.Expired(c.room)

		if c.grace > 0 {
			grace := time.NewTimer(c.grace)
			select {
			case <-c.stop:
				grace.Stop()
				return
			case <-grace.C:
			}
		}

		c.listener.Deadline(c.room)
		return
	}
}

// Stop halts the countdown. It is idempotent and safe to call from the
// listener callbacks.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Done is closed when the countdown goroutine has exited.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}
