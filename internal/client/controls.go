package client

import (
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

const DefaultCooldown = 2 * time.Second

type ControlState int

const (
	ControlIdle ControlState = iota
	ControlPending
	ControlActive
	ControlCooldown
)

func (s ControlState) String() string {
	switch s {
	case ControlIdle:
		return "idle"
	case ControlPending:
		return "pending"
	case ControlActive:
		return "active"
	case ControlCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

type control struct {
	state ControlState
	until time.Time
}

// AnalysisControls tracks what the host may do per target: one request in flight, and a
// short pause after stopping before the same target can be analyzed again.
type AnalysisControls struct {
	mu       sync.Mutex
	now      func() time.Time
	cooldown time.Duration
	targets  map[domain.UserID]*control
}

func NewAnalysisControls() *AnalysisControls {
	return newAnalysisControlsWithClock(time.Now, DefaultCooldown)
}

func newAnalysisControlsWithClock(now func() time.Time, cooldown time.Duration) *AnalysisControls {
	return &AnalysisControls{now: now, cooldown: cooldown, targets: make(map[domain.UserID]*control)}
}

func (c *AnalysisControls) State(target domain.UserID) ControlState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked(target)
}

func (c *AnalysisControls) stateLocked(target domain.UserID) ControlState {
	e, ok := c.targets[target]
	if !ok {
		return ControlIdle
	}
	if e.state == ControlCooldown && !c.now().Before(e.until) {
		delete(c.targets, target)
		return ControlIdle
	}
	return e.state
}

// Start reserves target. It fails while a request is in flight or cooling down.
func (c *AnalysisControls) Start(target domain.UserID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stateLocked(target) != ControlIdle {
		return false
	}
	c.targets[target] = &control{state: ControlPending}
	return true
}

func (c *AnalysisControls) Established(target domain.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.targets[target]; ok && e.state == ControlPending {
		e.state = ControlActive
	}
}

// Stop records a host stop and starts the cooldown.
func (c *AnalysisControls) Stop(target domain.UserID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.stateLocked(target) {
	case ControlPending, ControlActive:
		c.targets[target] = &control{state: ControlCooldown, until: c.now().Add(c.cooldown)}
		return true
	}
	return false
}

// Resolved handles a terminal notice from the server. A running cooldown is kept.
func (c *AnalysisControls) Resolved(target domain.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stateLocked(target) != ControlCooldown {
		delete(c.targets, target)
	}
}
