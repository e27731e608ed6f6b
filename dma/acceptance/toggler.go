package acceptance

import "github.com/sarchlab/pciedma/sim"

// A Pausable component can stop taking or sending messages.
type Pausable interface {
	SetPaused(paused bool)
}

// PauseToggler pauses a component for three cycles out of every four while
// it is running.
type PauseToggler struct {
	*sim.TickingComponent

	target  Pausable
	running bool
	phase   int
	until   func() bool
}

// NewPauseToggler creates a toggler that drives target.
func NewPauseToggler(
	name string,
	engine sim.Engine,
	freq sim.Freq,
	target Pausable,
) *PauseToggler {
	t := &PauseToggler{target: target}
	t.TickingComponent = sim.NewTickingComponent(name, engine, freq, t)

	return t
}

// Start begins toggling. The toggler stops by itself once until returns
// true.
func (t *PauseToggler) Start(until func() bool) {
	t.running = true
	t.phase = 0
	t.until = until
	t.TickLater()
}

// Stop releases the target.
func (t *PauseToggler) Stop() {
	t.running = false
	t.target.SetPaused(false)
}

// Running tells if the toggler is running.
func (t *PauseToggler) Running() bool {
	return t.running
}

// Tick moves the pattern one cycle forward.
func (t *PauseToggler) Tick() bool {
	if !t.running {
		return false
	}

	if t.until != nil && t.until() {
		t.Stop()
		return false
	}

	t.target.SetPaused(t.phase < 3)
	t.phase = (t.phase + 1) % 4

	return true
}
