package quiz

import (
	"context"
	"sync"
	"time"
)

// CountdownState is the state of a Countdown.
type CountdownState int

const (
	CountdownStopped CountdownState = iota
	CountdownRunning
	CountdownExpired
)

func (s CountdownState) String() string {
	switch s {
	case CountdownRunning:
		return "running"
	case CountdownExpired:
		return "expired"
	default:
		return "stopped"
	}
}

// Ticker is the periodic source driving a Countdown.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Countdown owns the session clock: a whole number of seconds that only
// ever decreases, one step per tick, and never goes below zero.
//
// onTick and onExpire run on the ticking goroutine. They must not call Close.
type Countdown struct {
	mu        sync.Mutex
	state     CountdownState
	started   bool
	remaining int
	interval  time.Duration
	newTicker TickerFunc
	onTick    func(remaining int)
	onExpire  func()
	cancel    context.CancelFunc
	done      chan struct{}
}

// CountdownOption configures a Countdown.
type CountdownOption func(*Countdown)

// WithInterval sets the tick interval (default one second).
func WithInterval(d time.Duration) CountdownOption {
	return func(c *Countdown) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTicker replaces the ticker factory.
func WithTicker(f TickerFunc) CountdownOption {
	return func(c *Countdown) {
		if f != nil {
			c.newTicker = f
		}
	}
}

// OnTick registers a callback invoked after every decrement.
func OnTick(f func(remaining int)) CountdownOption {
	return func(c *Countdown) { c.onTick = f }
}

// OnExpire registers the callback invoked exactly once when the clock reaches zero.
func OnExpire(f func()) CountdownOption {
	return func(c *Countdown) { c.onExpire = f }
}

// NewCountdown creates a stopped countdown of the given length in seconds.
func NewCountdown(seconds int, opts ...CountdownOption) *Countdown {
	if seconds < 0 {
		seconds = 0
	}
	c := &Countdown{
		remaining: seconds,
		interval:  time.Second,
		newTicker: NewRealTicker,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start moves Stopped → Running and begins ticking. A countdown starts at
// most once; later calls return false.
func (c *Countdown) Start() bool {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return false
	}
	c.started = true

	if c.remaining == 0 {
		c.state = CountdownExpired
		c.mu.Unlock()
		if c.onExpire != nil {
			c.onExpire()
		}
		return true
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.state = CountdownRunning
	t := c.newTicker(c.interval)
	go c.run(ctx, t, c.done)
	c.mu.Unlock()
	return true
}

func (c *Countdown) run(ctx context.Context, t Ticker, done chan struct{}) {
	defer close(done)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			if !c.Tick() {
				return
			}
		}
	}
}

// Tick decrements the clock by one second if running. It returns false once
// the countdown is no longer running.
func (c *Countdown) Tick() bool {
	c.mu.Lock()
	if c.state != CountdownRunning {
		c.mu.Unlock()
		return false
	}
	c.remaining--
	remaining := c.remaining
	expired := remaining == 0
	if expired {
		c.state = CountdownExpired
		c.cancel()
	}
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(remaining)
	}
	if expired {
		if c.onExpire != nil {
			c.onExpire()
		}
		return false
	}
	return true
}

// Stop moves Running → Stopped and cancels the pending tick. It does not
// wait for the ticking goroutine, so it is safe to call from onExpire.
func (c *Countdown) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.state != CountdownRunning {
		return false
	}
	c.state = CountdownStopped
	return true
}

// Close stops the countdown and waits for the ticking goroutine to exit.
func (c *Countdown) Close() {
	c.Stop()
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Remaining returns the seconds left on the clock.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// State returns the current state.
func (c *Countdown) State() CountdownState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
