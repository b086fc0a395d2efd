package scangate

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingSource struct {
	paused, resumed atomic.Int32
}

func (s *countingSource) Pause()  { s.paused.Add(1) }
func (s *countingSource) Resume() { s.resumed.Add(1) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)}
}

func TestAdmitOnlyWhenIdle(t *testing.T) {
	g := New(DefaultRepeatWindow, 0)

	if r := g.Admit("a"); r != Admitted {
		t.Fatalf("first read = %v, want admitted", r)
	}
	if g.State() != Processing {
		t.Fatalf("state = %v, want processing", g.State())
	}
	if r := g.Admit("b"); r != Busy {
		t.Fatalf("read while processing = %v, want busy", r)
	}

	g.Release(true)
	if g.State() != Idle {
		t.Fatalf("state after release with zero cooldown = %v, want idle", g.State())
	}
	if r := g.Admit("b"); r != Admitted {
		t.Fatalf("read after release = %v, want admitted", r)
	}
}

func TestRepeatWindow(t *testing.T) {
	clock := newClock()
	g := New(3*time.Second, 0, WithClock(clock.Now))

	if r := g.Admit("QR-1"); r != Admitted {
		t.Fatalf("first = %v", r)
	}
	g.Release(false)

	for i := 0; i < 5; i++ {
		clock.Advance(500 * time.Millisecond)
		if r := g.Admit("QR-1"); r != Repeat {
			t.Fatalf("repeat %d = %v, want repeat", i, r)
		}
	}

	if r := g.Admit("QR-2"); r != Admitted {
		t.Fatalf("different text = %v, want admitted", r)
	}
	g.Release(false)

	clock.Advance(time.Second)
	if r := g.Admit("QR-1"); r != Admitted {
		t.Fatalf("QR-1 after other text = %v, want admitted", r)
	}
	g.Release(false)

	clock.Advance(3 * time.Second)
	if r := g.Admit("QR-1"); r != Admitted {
		t.Fatalf("QR-1 after window = %v, want admitted", r)
	}
	g.Release(false)
}

func TestRepeatMemorySurvivesCooldown(t *testing.T) {
	clock := newClock()
	g := New(3*time.Second, 10*time.Millisecond, WithClock(clock.Now))

	g.Admit("same")
	g.Release(true)
	waitForState(t, g, Idle)

	clock.Advance(time.Second)
	if r := g.Admit("same"); r != Repeat {
		t.Fatalf("after cooldown = %v, want repeat", r)
	}
}

func TestRestartClearsMemory(t *testing.T) {
	clock := newClock()
	g := New(3*time.Second, time.Hour, WithClock(clock.Now))

	g.Admit("same")
	g.Release(true)
	if g.State() != Cooldown {
		t.Fatalf("state = %v, want cooldown", g.State())
	}

	g.Restart()
	if g.State() != Idle {
		t.Fatalf("state after restart = %v, want idle", g.State())
	}
	if r := g.Admit("same"); r != Admitted {
		t.Fatalf("after restart = %v, want admitted", r)
	}
}

func TestCooldownReturnsToIdle(t *testing.T) {
	src := &countingSource{}
	var mu sync.Mutex
	var seen []State
	g := New(time.Second, 20*time.Millisecond,
		WithSource(src),
		WithObserver(func(from, to State) {
			mu.Lock()
			seen = append(seen, to)
			mu.Unlock()
		}),
	)

	g.Admit("x")
	if src.paused.Load() != 1 {
		t.Fatalf("source not paused on admit")
	}
	g.Release(true)
	if r := g.Admit("y"); r != Busy {
		t.Fatalf("read during cooldown = %v, want busy", r)
	}
	waitForState(t, g, Idle)
	if src.resumed.Load() != 1 {
		t.Fatalf("source resumed %d times, want 1", src.resumed.Load())
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{Armed, Processing, Cooldown, Idle}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", seen, want)
		}
	}
}

func TestReleaseWithoutCooldownSkipsDelay(t *testing.T) {
	g := New(time.Second, time.Hour)
	g.Admit("bad")
	g.Release(false)
	if g.State() != Idle {
		t.Fatalf("state = %v, want idle", g.State())
	}
}

func TestStop(t *testing.T) {
	g := New(time.Second, time.Hour)
	g.Admit("a")
	g.Release(true)
	g.Stop()
	if r := g.Admit("b"); r != Halted {
		t.Fatalf("admit after stop = %v, want stopped", r)
	}
	g.Restart()
	if r := g.Admit("b"); r != Admitted {
		t.Fatalf("admit after restart = %v, want admitted", r)
	}
}

func TestConcurrentAdmitsOnlyOneWins(t *testing.T) {
	g := New(time.Second, time.Hour)
	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if g.Admit(string(rune('a'+i%26))) == Admitted {
				admitted.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if admitted.Load() != 1 {
		t.Fatalf("admitted %d reads, want 1", admitted.Load())
	}
}

func waitForState(t *testing.T, g *Gate, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if g.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", g.State(), want)
}
