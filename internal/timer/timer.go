// Package timer derives the remaining time of an exam attempt and fires a
// single expiration event when it runs out.
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

// DefaultInterval is the tick period of a Controller.
const DefaultInterval = time.Second

// Policy is the expiration rule of one attempt: either a duration counted
// from StartedAt or an absolute EndsAt deadline.
type Policy struct {
	StartedAt time.Time
	Duration  time.Duration
	EndsAt    time.Time
}

// DurationPolicy counts down d from startedAt.
func DurationPolicy(startedAt time.Time, d time.Duration) Policy {
	return Policy{StartedAt: startedAt, Duration: d}
}

// AbsolutePolicy expires at endsAt.
func AbsolutePolicy(startedAt, endsAt time.Time) Policy {
	return Policy{StartedAt: startedAt, EndsAt: endsAt}
}

// PolicyFor picks the policy of an exam. The fixed duration wins over the end
// timestamp. It returns false for untimed exams.
func PolicyFor(meta model.ExamMeta, attemptStartedAt time.Time) (Policy, bool) {
	switch {
	case meta.DurationMinutes > 0:
		return DurationPolicy(attemptStartedAt, time.Duration(meta.DurationMinutes)*time.Minute), true
	case meta.EndsAt != nil:
		start := attemptStartedAt
		if meta.StartsAt != nil {
			start = *meta.StartsAt
		}
		return AbsolutePolicy(start, *meta.EndsAt), true
	}
	return Policy{}, false
}

// Deadline returns the instant the attempt expires.
func (p Policy) Deadline() time.Time {
	if p.Duration > 0 {
		return p.StartedAt.Add(p.Duration)
	}
	return p.EndsAt
}

// Total returns the full length of the attempt window.
func (p Policy) Total() time.Duration {
	return p.Deadline().Sub(p.StartedAt)
}

// RemainingAt returns max(0, deadline - now).
func (p Policy) RemainingAt(now time.Time) time.Duration {
	return max(0, p.Deadline().Sub(now))
}

// Options configures a Controller.
type Options struct {
	// Interval between ticks. Defaults to DefaultInterval.
	Interval time.Duration
	// OnTick receives the remaining time after every tick.
	OnTick func(remaining time.Duration)
	// OnExpire is called once, from the tick goroutine, when time runs out.
	OnExpire func()
}

// Controller ticks a countdown on an injected clock.
// It must be released with Stop when its owner goes away.
type Controller struct {
	clock    clockwork.Clock
	policy   Policy
	interval time.Duration
	onTick   func(time.Duration)
	onExpire func()

	mu        sync.Mutex
	remaining time.Duration
	expired   bool
	started   bool
	stopped   bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a stopped controller for policy.
func New(clock clockwork.Clock, policy Policy, opts Options) *Controller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Controller{
		clock:     clock,
		policy:    policy,
		interval:  opts.Interval,
		onTick:    opts.OnTick,
		onExpire:  opts.OnExpire,
		remaining: policy.RemainingAt(clock.Now()),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins ticking. The first tick happens immediately, so an attempt
// that is already past its deadline expires right away.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	t := c.clock.NewTicker(c.interval)
	go c.run(t)
}

func (c *Controller) run(t clockwork.Ticker) {
	defer close(c.done)
	defer t.Stop()

	if c.tick() {
		return
	}
	for {
		select {
		case <-c.stop:
			return
		case <-t.Chan():
			if c.tick() {
				return
			}
		}
	}
}

// tick recomputes the remaining time and reports whether ticking is over.
func (c *Controller) tick() bool {
	c.mu.Lock()
	if c.stopped || c.expired {
		c.mu.Unlock()
		return true
	}
	c.remaining = c.policy.RemainingAt(c.clock.Now())
	rem := c.remaining
	fire := rem == 0
	if fire {
		c.expired = true
	}
	c.mu.Unlock()

	if c.onTick != nil {
		c.onTick(rem)
	}
	if fire && c.onExpire != nil {
		c.onExpire()
	}
	return fire
}

// Stop ends ticking and releases the ticker. It is safe to call more than
// once and from inside OnExpire.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		started := c.started
		c.mu.Unlock()
		close(c.stop)
		if !started {
			close(c.done)
		}
	})
}

// Done is closed once the controller no longer ticks.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Remaining returns the remaining time as of the last tick.
func (c *Controller) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Expired reports whether the expiration event has fired.
func (c *Controller) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Deadline returns the expiration instant.
func (c *Controller) Deadline() time.Time {
	return c.policy.Deadline()
}

// Percent returns elapsed/total as a percentage clamped to [0, 100].
func (c *Controller) Percent() float64 {
	total := c.policy.Total()
	if total <= 0 {
		return 100
	}
	elapsed := total - c.Remaining()
	return min(100, max(0, float64(elapsed)*100/float64(total)))
}
