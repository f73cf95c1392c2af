package clock

import (
	"sync"
	"time"
)

// Manual is a Clock that only moves when Advance is called.
type Manual struct {
	mu       sync.Mutex
	now      time.Time
	sleepers []*sleeper
}

type sleeper struct {
	until time.Time
	done  chan struct{}
}

// NewManual constructs a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Since returns the manual time elapsed since t.
func (m *Manual) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

// Sleep blocks until the clock has been advanced by at least d.
func (m *Manual) Sleep(d time.Duration) {
	m.mu.Lock()
	if d <= 0 {
		m.mu.Unlock()
		return
	}
	s := &sleeper{until: m.now.Add(d), done: make(chan struct{})}
	m.sleepers = append(m.sleepers, s)
	m.mu.Unlock()
	<-s.done
}

// Advance moves time forward by d and wakes sleepers whose deadline passed.
func (m *Manual) Advance(d time.Duration) time.Time {
	if d < 0 {
		d = 0
	}
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	remaining := m.sleepers[:0]
	for _, s := range m.sleepers {
		if s.until.After(now) {
			remaining = append(remaining, s)
			continue
		}
		close(s.done)
	}
	m.sleepers = remaining
	m.mu.Unlock()
	return now
}

// Sleepers returns the number of goroutines parked in Sleep.
func (m *Manual) Sleepers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sleepers)
}
