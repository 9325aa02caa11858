package phase

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func TestAllotments_Bands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		total               int
		intro, tech, wrapUp int
	}{
		{total: 5, intro: 1, tech: 3, wrapUp: 1},
		{total: 8, intro: 1, tech: 6, wrapUp: 1},
		{total: 10, intro: 1, tech: 8, wrapUp: 1},
		{total: 11, intro: 2, tech: 6, wrapUp: 1},
		{total: 15, intro: 2, tech: 10, wrapUp: 1},
		{total: 20, intro: 2, tech: 15, wrapUp: 1},
		{total: 21, intro: 3, tech: 14, wrapUp: 2},
		{total: 30, intro: 3, tech: 23, wrapUp: 2},
		{total: 60, intro: 3, tech: 53, wrapUp: 2},
		{total: 120, intro: 3, tech: 113, wrapUp: 2},
	}
	for _, tt := range tests {
		a := Allotments(tt.total)
		if a[Introduction] != tt.intro || a[Technical] != tt.tech || a[WrapUp] != tt.wrapUp {
			t.Errorf("Allotments(%d) = %v; want %d/%d/%d", tt.total, a, tt.intro, tt.tech, tt.wrapUp)
		}
	}
}

func TestAllotments_NeverExceedTotal(t *testing.T) {
	t.Parallel()

	for total := 0; total <= 150; total++ {
		a := Allotments(total)
		sum := a[Introduction] + a[Technical] + a[WrapUp]
		if sum > total {
			t.Errorf("Allotments(%d) sums to %d", total, sum)
		}
		for p, m := range a {
			if m < 0 {
				t.Errorf("Allotments(%d)[%s] = %d", total, p, m)
			}
		}
	}
}

func TestController_TimeExceededMonotonic(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := NewController(8, WithClock(clock.Now))

	if c.TimeExceeded() {
		t.Fatal("TimeExceeded before Start")
	}
	c.Start()
	if c.TimeExceeded() {
		t.Fatal("TimeExceeded immediately after Start")
	}

	clock.Advance(7*time.Minute + 59*time.Second)
	if c.TimeExceeded() {
		t.Fatal("TimeExceeded before the full duration")
	}

	clock.Advance(time.Second)
	for i := 0; i < 5; i++ {
		if !c.TimeExceeded() {
			t.Fatalf("TimeExceeded reverted to false at step %d", i)
		}
		clock.Advance(time.Minute)
	}
}

func TestController_StartOnce(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := NewController(8, WithClock(clock.Now))
	c.Start()
	first, _ := c.Started()

	clock.Advance(time.Minute)
	c.Start()
	second, ok := c.Started()
	if !ok || !second.Equal(first) {
		t.Errorf("start moved from %v to %v", first, second)
	}
}

func TestController_ShouldTransitionAfterIntroduction(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := NewController(8, WithClock(clock.Now))
	c.Start()

	if c.ShouldTransition() {
		t.Fatal("ShouldTransition at start")
	}
	clock.Advance(59 * time.Second)
	if c.ShouldTransition() {
		t.Fatal("ShouldTransition before one minute")
	}
	clock.Advance(time.Second)
	if !c.ShouldTransition() {
		t.Fatal("ShouldTransition false after the introduction allotment")
	}

	if next := c.Next(); next != Technical {
		t.Fatalf("Next = %s; want technical", next)
	}
	if err := c.TransitionTo(Technical); err != nil {
		t.Fatalf("TransitionTo: %v", err)
	}
	if c.ShouldTransition() {
		t.Error("phase clock was not reset by TransitionTo")
	}
	clock.Advance(6 * time.Minute)
	if !c.ShouldTransition() {
		t.Error("ShouldTransition false after the technical allotment")
	}
}

func TestController_ForwardOnly(t *testing.T) {
	t.Parallel()

	c := NewController(30)
	c.Start()

	if err := c.TransitionTo(WrapUp); err != nil {
		t.Fatalf("skip ahead: %v", err)
	}
	if err := c.TransitionTo(Technical); err == nil {
		t.Error("moved backwards to technical")
	}
	if err := c.TransitionTo(WrapUp); err == nil {
		t.Error("re-entered the current phase")
	}
	if err := c.TransitionTo(Phase("lunch")); err == nil {
		t.Error("accepted an unknown phase")
	}
	if err := c.TransitionTo(Completed); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if c.Current() != Completed || c.Next() != Completed {
		t.Errorf("Current=%s Next=%s; want completed", c.Current(), c.Next())
	}
	if c.ShouldTransition() {
		t.Error("completed phase asked to transition")
	}
}
