// Package session runs one student's exam on the server side of the stream:
// a countdown timer, the anti-cheat gate and the submit wiring between them.
package session

import (
	"context"
	"sync"
	"time"
)

// WarningThreshold is the remaining time below which ticks carry a warning.
const WarningThreshold = 300

// TimerOptions configures a Timer. Zero values fall back to a one-second
// tick and a one-second auto-submit delay.
type TimerOptions struct {
	Tick        time.Duration
	AutoSubmit  bool
	SubmitDelay time.Duration
	// OnTick receives the remaining seconds after every decrement.
	OnTick func(remaining int)
	// OnTimeout runs once when the countdown reaches zero.
	OnTimeout func()
}

// Timer counts down whole seconds on its own decrement loop. A paused or
// slow loop lags the countdown instead of skipping seconds.
type Timer struct {
	mu        sync.Mutex
	remaining int
	opts      TimerOptions

	started bool
	fired   bool
	stop    chan struct{}
	once    sync.Once
	expired chan struct{}
	submit  chan struct{}
}

// NewTimer creates a stopped timer with initialSeconds on the clock.
func NewTimer(initialSeconds int, opts TimerOptions) *Timer {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.SubmitDelay <= 0 {
		opts.SubmitDelay = time.Second
	}
	return &Timer{
		remaining: max(initialSeconds, 0),
		opts:      opts,
		stop:      make(chan struct{}),
		expired:   make(chan struct{}),
		submit:    make(chan struct{}, 1),
	}
}

// Start launches the countdown. Calling it again is a no-op.
func (t *Timer) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	go t.run(ctx)
}

func (t *Timer) run(ctx context.Context) {
	if t.Remaining() == 0 {
		t.fire(ctx)
		return
	}

	ticker := time.NewTicker(t.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		t.remaining--
		left := t.remaining
		t.mu.Unlock()

		if t.opts.OnTick != nil {
			t.opts.OnTick(left)
		}
		if left <= 0 {
			t.fire(ctx)
			return
		}
	}
}

// fire runs the timeout callback and, with AutoSubmit, signals Submitted
// after the settle delay. Only the first call has any effect.
func (t *Timer) fire(ctx context.Context) {
	t.mu.Lock()
	if t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()

	close(t.expired)
	if t.opts.OnTimeout != nil {
		t.opts.OnTimeout()
	}
	if !t.opts.AutoSubmit {
		return
	}

	delay := time.NewTimer(t.opts.SubmitDelay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
	case <-t.stop:
	case <-delay.C:
		select {
		case t.submit <- struct{}{}:
		default:
		}
	}
}

// Remaining returns the seconds left on the clock.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Warning reports whether the clock is in its final minutes.
func (t *Timer) Warning() bool {
	left := t.Remaining()
	return left > 0 && left < WarningThreshold
}

// Expired is closed when the countdown reaches zero.
func (t *Timer) Expired() <-chan struct{} {
	return t.expired
}

// AutoSubmit delivers at most one signal, SubmitDelay after expiry, when the
// timer was created with AutoSubmit.
func (t *Timer) AutoSubmit() <-chan struct{} {
	return t.submit
}

// Stop halts the countdown and any pending auto-submit signal.
func (t *Timer) Stop() {
	t.once.Do(func() { close(t.stop) })
}
