package clock

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Timer is a pending delayed callback.
type Timer interface {
	// Stop prevents the callback from running. It returns false if the
	// callback already ran or was already stopped.
	Stop() bool
}

// Scheduler runs delayed callbacks. Callbacks never run concurrently with
// the code that owns the scheduler: Manual runs them inside Advance, Loop
// hands them to the owner's event loop.
type Scheduler interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Manual is virtual time for tests.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	pending []*manualTimer
}

type manualTimer struct {
	m     *Manual
	at    time.Time
	seq   uint64
	fn    func()
	state int // 0 pending, 1 fired, 2 stopped
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d < 0 {
		d = 0
	}
	m.seq++
	t := &manualTimer{m: m, at: m.now.Add(d), seq: m.seq, fn: fn}
	m.pending = append(m.pending, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.state != 0 {
		return false
	}
	t.state = 2
	t.m.removeLocked(t)
	return true
}

func (m *Manual) removeLocked(t *manualTimer) {
	for i, p := range m.pending {
		if p == t {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}

// Pending counts timers that have neither fired nor been stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Advance moves time forward by d, firing due callbacks in deadline order
// (ties in scheduling order). Callbacks scheduled by callbacks fire too if
// they fall inside the window. It returns the number of callbacks run.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	end := m.now.Add(d)
	m.mu.Unlock()

	fired := 0
	for {
		m.mu.Lock()
		sort.SliceStable(m.pending, func(i, j int) bool {
			a, b := m.pending[i], m.pending[j]
			if !a.at.Equal(b.at) {
				return a.at.Before(b.at)
			}
			return a.seq < b.seq
		})
		if len(m.pending) == 0 || m.pending[0].at.After(end) {
			m.now = end
			m.mu.Unlock()
			return fired
		}
		t := m.pending[0]
		m.pending = m.pending[1:]
		t.state = 1
		if t.at.After(m.now) {
			m.now = t.at
		}
		m.mu.Unlock()

		t.fn()
		fired++
	}
}

// Loop is wall-clock time whose callbacks are handed to post, normally the
// owner's event loop, instead of running on the timer goroutine.
type Loop struct {
	post func(fn func())
}

func NewLoop(post func(fn func())) *Loop {
	return &Loop{post: post}
}

func (l *Loop) Now() time.Time { return time.Now() }

type loopTimer struct {
	t       *time.Timer
	stopped atomic.Bool
	ran     atomic.Bool
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		l.post(func() {
			if lt.stopped.Load() {
				return
			}
			lt.ran.Store(true)
			fn()
		})
	})
	return lt
}

func (t *loopTimer) Stop() bool {
	if t.ran.Load() || t.stopped.Swap(true) {
		return false
	}
	t.t.Stop()
	return true
}
