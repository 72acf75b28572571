package manager

import "time"

type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clock struct{}

func (clock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Expiry identifies one armed grace period. A session re-armed after a
// reconnect gets a new generation, so an expiry from an older timer that
// fired before it could be stopped claims nothing.
type Expiry struct {
	SessionID  string
	Generation uint64
}

type pending struct {
	timer      Timer
	generation uint64
}

// Monitor tracks the grace-period timers of disconnected sessions.
type Monitor struct {
	grace      time.Duration
	scheduler  Scheduler
	fire       func(Expiry)
	pending    map[string]pending
	generation uint64
}

func NewMonitor(grace time.Duration, scheduler Scheduler, fire func(Expiry)) *Monitor {
	if scheduler == nil {
		scheduler = clock{}
	}
	return &Monitor{
		grace:     grace,
		scheduler: scheduler,
		fire:      fire,
		pending:   make(map[string]pending),
	}
}

// Arm starts (or restarts) the grace period of a session.
func (m *Monitor) Arm(sessionID string) Expiry {
	m.Cancel(sessionID)
	m.generation++
	e := Expiry{SessionID: sessionID, Generation: m.generation}
	m.pending[sessionID] = pending{
		timer:      m.scheduler.AfterFunc(m.grace, func() { m.fire(e) }),
		generation: e.Generation,
	}
	return e
}

// Cancel stops the grace period of a session. It reports whether one was
// pending.
func (m *Monitor) Cancel(sessionID string) bool {
	p, ok := m.pending[sessionID]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(m.pending, sessionID)
	return true
}

// Claim consumes an expiry if it is still the current one for its session.
func (m *Monitor) Claim(e Expiry) bool {
	p, ok := m.pending[e.SessionID]
	if !ok || p.generation != e.Generation {
		return false
	}
	delete(m.pending, e.SessionID)
	return true
}

func (m *Monitor) Pending(sessionID string) bool {
	_, ok := m.pending[sessionID]
	return ok
}

func (m *Monitor) Len() int {
	return len(m.pending)
}
