// Package scangate admits scanned reads one at a time.
//
// A Gate moves Idle -> Armed -> Processing -> Cooldown -> Idle. Reads are
// only accepted in Idle, and a read repeating the last accepted text inside
// the repeat window is dropped. The last-read memory survives cooldowns and
// is only cleared by Restart.
package scangate

import (
	"sync"
	"time"
)

// State of the gate
type State int

const (
	Idle State = iota
	Armed
	Processing
	Cooldown
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Processing:
		return "processing"
	case Cooldown:
		return "cooldown"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

// Rejection explains why a read was not admitted
type Rejection int

const (
	Admitted Rejection = iota
	Busy
	Repeat
	Halted
)

func (r Rejection) String() string {
	switch r {
	case Admitted:
		return "admitted"
	case Busy:
		return "busy"
	case Repeat:
		return "repeat"
	case Halted:
		return "stopped"
	}
	return "unknown"
}

// Pauser is the frame source the gate pauses while an attempt is in flight
type Pauser interface {
	Pause()
	Resume()
}

// Default timings
const (
	DefaultRepeatWindow = 3 * time.Second
	DefaultCooldown     = 2 * time.Second
)

// Gate serializes attendance attempts
type Gate struct {
	mu           sync.Mutex
	state        State
	lastText     string
	lastAt       time.Time
	repeatWindow time.Duration
	cooldown     time.Duration
	timer        *time.Timer
	gen          uint64
	source       Pauser
	onChange     func(from, to State)

	now func() time.Time
}

// Option configures a Gate
type Option func(*Gate)

// WithClock replaces time.Now for repeat-window checks
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithSource registers the frame source paused during processing
func WithSource(p Pauser) Option {
	return func(g *Gate) { g.source = p }
}

// WithObserver is called on every state transition, outside the lock
func WithObserver(fn func(from, to State)) Option {
	return func(g *Gate) { g.onChange = fn }
}

// New creates an idle Gate
func New(repeatWindow, cooldown time.Duration, opts ...Option) *Gate {
	g := &Gate{
		state:        Idle,
		repeatWindow: repeatWindow,
		cooldown:     cooldown,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current state
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Admit tries to take the gate for text. On success the gate is already in
// Processing when Admit returns, and the caller must call Release exactly
// once.
func (g *Gate) Admit(text string) Rejection {
	g.mu.Lock()
	switch g.state {
	case Stopped:
		g.mu.Unlock()
		return Halted
	case Idle:
	default:
		g.mu.Unlock()
		return Busy
	}

	now := g.now()
	if text == g.lastText && !g.lastAt.IsZero() && now.Sub(g.lastAt) < g.repeatWindow {
		g.mu.Unlock()
		return Repeat
	}

	g.lastText = text
	g.lastAt = now
	// Armed is passed through under the same lock so no second read can
	// slip in before Processing.
	g.state = Processing
	g.mu.Unlock()

	g.notify(Idle, Armed)
	g.notify(Armed, Processing)
	if g.source != nil {
		g.source.Pause()
	}
	return Admitted
}

// Release ends the attempt. With cooldown the gate waits the configured
// delay before returning to Idle; without it the gate is Idle immediately.
func (g *Gate) Release(cooldown bool) {
	g.mu.Lock()
	if g.state != Processing {
		g.mu.Unlock()
		return
	}

	if !cooldown || g.cooldown <= 0 {
		g.state = Idle
		g.mu.Unlock()
		g.notify(Processing, Idle)
		g.resume()
		return
	}

	g.state = Cooldown
	g.gen++
	gen := g.gen
	g.timer = time.AfterFunc(g.cooldown, func() { g.expire(gen) })
	g.mu.Unlock()
	g.notify(Processing, Cooldown)
}

func (g *Gate) expire(gen uint64) {
	g.mu.Lock()
	if g.state != Cooldown || g.gen != gen {
		g.mu.Unlock()
		return
	}
	g.state = Idle
	g.timer = nil
	g.mu.Unlock()
	g.notify(Cooldown, Idle)
	g.resume()
}

// Stop halts the gate; no read is admitted until Restart
func (g *Gate) Stop() {
	g.mu.Lock()
	from := g.state
	g.stopTimer()
	g.state = Stopped
	g.mu.Unlock()
	if from != Stopped {
		g.notify(from, Stopped)
	}
}

// Restart returns a stopped or cooling gate to Idle and forgets the last
// read. An attempt still in flight keeps the gate.
func (g *Gate) Restart() {
	g.mu.Lock()
	from := g.state
	g.lastText = ""
	g.lastAt = time.Time{}
	if from == Processing || from == Armed {
		g.mu.Unlock()
		return
	}
	g.stopTimer()
	g.state = Idle
	g.mu.Unlock()
	if from != Idle {
		g.notify(from, Idle)
		g.resume()
	}
}

func (g *Gate) stopTimer() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.gen++
}

func (g *Gate) resume() {
	if g.source != nil {
		g.source.Resume()
	}
}

func (g *Gate) notify(from, to State) {
	if g.onChange != nil {
		g.onChange(from, to)
	}
}
