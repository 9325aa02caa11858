// Package phase tracks interview timing. The controller never moves itself
// forward; callers ask ShouldTransition and TimeExceeded and decide.
package phase

import (
	"fmt"
	"sync"
	"time"
)

// Phase is a named segment of interview time.
type Phase string

const (
	Introduction Phase = "introduction"
	Technical    Phase = "technical"
	WrapUp       Phase = "wrap_up"
	Completed    Phase = "completed"
)

var order = []Phase{Introduction, Technical, WrapUp, Completed}

func (p Phase) index() int {
	for i, o := range order {
		if o == p {
			return i
		}
	}
	return -1
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool { return p.index() >= 0 }

// Allotments returns whole-minute durations per phase for a total interview
// length. The three values never sum to more than total.
func Allotments(total int) map[Phase]int {
	// reserve is subtracted from total for the technical phase. Above ten
	// minutes it leaves slack beyond the introduction and wrap-up.
	var intro, wrap, reserve int
	switch {
	case total <= 10:
		intro, wrap, reserve = 1, 1, 2
	case total <= 20:
		intro, wrap, reserve = 2, 1, 5
	default:
		intro, wrap, reserve = 3, 2, 7
	}

	if total < intro+wrap {
		intro = min(intro, max(total, 0))
		wrap = min(wrap, max(total-intro, 0))
	}
	return map[Phase]int{
		Introduction: intro,
		Technical:    max(total-reserve, 0),
		WrapUp:       wrap,
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller is the interview phase state machine.
type Controller struct {
	mu         sync.Mutex
	now        func() time.Time
	total      time.Duration
	totalMin   int
	allot      map[Phase]int
	current    Phase
	start      time.Time
	phaseStart time.Time
	started    bool
}

// NewController builds a controller for an interview of totalMinutes.
func NewController(totalMinutes int, opts ...Option) *Controller {
	c := &Controller{
		now:      time.Now,
		total:    time.Duration(totalMinutes) * time.Minute,
		totalMin: totalMinutes,
		allot:    Allotments(totalMinutes),
		current:  Introduction,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start records the interview start time. Later calls are ignored.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.start = c.now()
	c.phaseStart = c.start
}

// Started returns the start time and whether Start has been called.
func (c *Controller) Started() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start, c.started
}

// Current returns the active phase.
func (c *Controller) Current() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// TotalMinutes returns the configured interview length.
func (c *Controller) TotalMinutes() int { return c.totalMin }

// Allotment returns the minutes allotted to p. Completed has none.
func (c *Controller) Allotment(p Phase) int {
	return c.allot[p]
}

// Elapsed returns time since Start, or zero before it.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return 0
	}
	return c.now().Sub(c.start)
}

// TimeExceeded reports whether the whole interview duration has elapsed.
func (c *Controller) TimeExceeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return false
	}
	return c.now().Sub(c.start) >= c.total
}

// ShouldTransition reports whether the current phase has used its allotment.
func (c *Controller) ShouldTransition() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.current == Completed {
		return false
	}
	allot := time.Duration(c.allot[c.current]) * time.Minute
	return c.now().Sub(c.phaseStart) >= allot
}

// Next returns the phase after the current one.
func (c *Controller) Next() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.current.index()
	if i+1 >= len(order) {
		return Completed
	}
	return order[i+1]
}

// TransitionTo moves to p and restarts the phase clock. Moving backwards or
// staying put is rejected; skipping ahead is allowed.
func (c *Controller) TransitionTo(p Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !p.Valid() {
		return fmt.Errorf("unknown phase %q", p)
	}
	if p.index() <= c.current.index() {
		return fmt.Errorf("cannot move from %s to %s", c.current, p)
	}
	c.current = p
	c.phaseStart = c.now()
	return nil
}
