package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a virtual clock. Time only moves when Advance is called, and
// due callbacks run synchronously on the goroutine calling Advance, in
// deadline order.
//
// Callbacks may schedule further tasks; tasks that become due within the same
// Advance window fire before Advance returns. Do not call Advance from inside a
// callback.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending []*task
}

type task struct {
	deadline time.Time
	seq      uint64
	fn       func()
	done     bool
}

// NewFake returns a FakeClock that starts at initial.
func NewFake(initial time.Time) *FakeClock {
	return &FakeClock{now: initial}
}

// Now returns the virtual time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run once the virtual time reaches now+d. A
// non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}

	c.mu.Lock()
	c.seq++
	t := &task{deadline: c.now.Add(d), seq: c.seq, fn: f}
	c.pending = append(c.pending, t)
	c.mu.Unlock()

	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if t.done {
			return false
		}
		t.done = true
		return true
	}}
}

// Advance moves virtual time forward by d and runs every task that became due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// Pending returns how many scheduled tasks have not fired or been stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.pending {
		if !t.done {
			n++
		}
	}
	return n
}

// nextDue pops the earliest task due at or before target and moves the
// virtual time to its deadline, so callbacks observe the time they were
// scheduled for.
func (c *FakeClock) nextDue(target time.Time) *task {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.pending[:0]
	for _, t := range c.pending {
		if !t.done {
			live = append(live, t)
		}
	}
	c.pending = live

	sort.Slice(c.pending, func(i, j int) bool {
		a, b := c.pending[i], c.pending[j]
		if a.deadline.Equal(b.deadline) {
			return a.seq < b.seq
		}
		return a.deadline.Before(b.deadline)
	})

	if len(c.pending) == 0 || c.pending[0].deadline.After(target) {
		return nil
	}
	t := c.pending[0]
	t.done = true
	c.pending = c.pending[1:]
	if t.deadline.After(c.now) {
		c.now = t.deadline
	}
	return t
}
