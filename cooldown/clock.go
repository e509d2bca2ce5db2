// Package cooldown keeps a local countdown between authoritative reads of
// the faucet's remaining cooldown.
package cooldown

import (
	"fmt"
	"sync"
	"time"
)

// Ticker is the periodic tick source driving a Clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker adapts time.Ticker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Clock counts down from a seeded number of seconds and fires its
// onReachZero callback exactly once per seeding.
//
// Start reseeds: the previous countdown, its tick loop and its pending zero
// trigger are cancelled. Stop releases the tick loop and waits for it to exit.
// onReachZero runs on the tick goroutine (or the caller of Tick) and must not
// call Stop.
type Clock struct {
	onReachZero func()
	onTick      func(remaining uint64)
	interval    time.Duration
	newTicker   func(time.Duration) Ticker

	mu        sync.Mutex
	gen       uint64
	remaining uint64
	armed     bool
	stop      chan struct{}
	wg        sync.WaitGroup
}

type Option func(*Clock)

// WithInterval sets the tick cadence. Zero disables the internal tick loop;
// the owner then drives the clock through Tick.
func WithInterval(d time.Duration) Option {
	return func(c *Clock) {
		c.interval = d
	}
}

// WithOnTick registers fn to observe every decrement, including the one reaching zero.
func WithOnTick(fn func(remaining uint64)) Option {
	return func(c *Clock) {
		c.onTick = fn
	}
}

// WithTicker replaces the tick source factory.
func WithTicker(factory func(time.Duration) Ticker) Option {
	return func(c *Clock) {
		c.newTicker = factory
	}
}

func New(onReachZero func(), opts ...Option) *Clock {
	c := &Clock{
		onReachZero: onReachZero,
		interval:    time.Second,
		newTicker:   NewTimeTicker,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start seeds the countdown. Seeding with zero stops the clock without firing.
func (c *Clock) Start(seconds uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	c.gen++
	c.remaining = seconds
	c.armed = seconds > 0
	if !c.armed || c.interval <= 0 {
		return
	}

	stop := make(chan struct{})
	c.stop = stop
	ticker := c.newTicker(c.interval)
	gen := c.gen
	c.wg.Add(1)
	go c.loop(gen, ticker, stop)
}

// Tick advances the countdown by one second, floored at zero.
func (c *Clock) Tick() {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()
	c.tick(gen)
}

// Remaining is the current local countdown value in seconds.
func (c *Clock) Remaining() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Running reports whether a countdown is armed and has not yet fired.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Stop disarms the clock and waits for the tick loop to release its ticker.
func (c *Clock) Stop() {
	c.mu.Lock()
	c.cancelLocked()
	c.gen++
	c.armed = false
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Clock) loop(gen uint64, ticker Ticker, stop chan struct{}) {
	defer c.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if done := c.tick(gen); done {
				return
			}
		}
	}
}

// tick applies one tick to generation gen. It returns true once that
// generation is finished, either fired or superseded.
func (c *Clock) tick(gen uint64) bool {
	c.mu.Lock()
	if gen != c.gen || !c.armed {
		c.mu.Unlock()
		return true
	}
	if c.remaining > 0 {
		c.remaining--
	}
	remaining, onTick := c.remaining, c.onTick
	if remaining > 0 {
		c.mu.Unlock()
		if onTick != nil {
			onTick(remaining)
		}
		return false
	}
	c.armed = false
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	fire := c.onReachZero
	c.mu.Unlock()

	if onTick != nil {
		onTick(0)
	}
	if fire != nil {
		fire()
	}
	return true
}

func (c *Clock) cancelLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
}

// Format renders seconds as "Xh Ym", "Ym Zs" or "Zs".
func Format(seconds uint64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
