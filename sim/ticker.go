package sim

import (
	"sync"
)

// TickEvent wakes a ticking component up for one cycle.
type TickEvent struct {
	EventBase
}

// MakeTickEvent creates a primary TickEvent for handler at time.
func MakeTickEvent(handler Handler, time VTimeInSec) TickEvent {
	evt := TickEvent{}
	evt.ID = GetIDGenerator().Generate()
	evt.handler = handler
	evt.time = time

	return evt
}

// A Ticker is an object that updates states with ticks. Tick reports if
// anything changed, which keeps the owner ticking in the next cycle.
type Ticker interface {
	Tick() bool
}

// TickScheduler schedules at most one tick per cycle for a handler.
type TickScheduler struct {
	handler   Handler
	engine    Engine
	freq      Freq
	secondary bool

	lock     sync.Mutex
	nextTick VTimeInSec
}

func newTickScheduler(
	handler Handler,
	engine Engine,
	freq Freq,
	secondary bool,
) *TickScheduler {
	return &TickScheduler{
		handler:   handler,
		engine:    engine,
		freq:      freq,
		secondary: secondary,
		nextTick:  -1,
	}
}

// TickNow schedules a tick in the current cycle unless one is pending.
func (t *TickScheduler) TickNow() {
	t.tickAt(t.freq.ThisTick(t.CurrentTime()))
}

// TickLater schedules a tick in the next cycle unless one is pending.
func (t *TickScheduler) TickLater() {
	t.tickAt(t.freq.NextTick(t.CurrentTime()))
}

func (t *TickScheduler) tickAt(time VTimeInSec) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.nextTick >= time {
		return
	}

	t.nextTick = time

	tick := MakeTickEvent(t.handler, time)
	tick.secondary = t.secondary
	t.engine.Schedule(tick)
}

// CurrentTime returns the current time of the engine.
func (t *TickScheduler) CurrentTime() VTimeInSec {
	return t.engine.CurrentTime()
}

// CurrentCycle returns the number of cycles passed since time 0.
func (t *TickScheduler) CurrentCycle() uint64 {
	return t.freq.Cycle(t.CurrentTime())
}

// TickingComponent is a component that sleeps until a port wakes it up and
// then ticks every cycle for as long as its Ticker makes progress.
type TickingComponent struct {
	*ComponentBase
	*TickScheduler

	ticker Ticker
}

// NotifyPortFree wakes the component up in the next cycle.
func (c *TickingComponent) NotifyPortFree(_ Port) {
	c.TickLater()
}

// NotifyRecv wakes the component up in the next cycle.
func (c *TickingComponent) NotifyRecv(_ Port) {
	c.TickLater()
}

// Handle runs one tick.
func (c *TickingComponent) Handle(_ Event) error {
	if c.ticker.Tick() {
		c.TickLater()
	}

	return nil
}

// NewTickingComponent creates a new ticking component
func NewTickingComponent(
	name string,
	engine Engine,
	freq Freq,
	ticker Ticker,
) *TickingComponent {
	return newTickingComponent(name, engine, freq, ticker, false)
}

// NewSecondaryTickingComponent creates a ticking component whose ticks run
// after all the primary events of the same cycle.
func NewSecondaryTickingComponent(
	name string,
	engine Engine,
	freq Freq,
	ticker Ticker,
) *TickingComponent {
	return newTickingComponent(name, engine, freq, ticker, true)
}

func newTickingComponent(
	name string,
	engine Engine,
	freq Freq,
	ticker Ticker,
	secondary bool,
) *TickingComponent {
	tc := &TickingComponent{
		ComponentBase: NewComponentBase(name),
		ticker:        ticker,
	}
	tc.TickScheduler = newTickScheduler(tc, engine, freq, secondary)

	return tc
}
