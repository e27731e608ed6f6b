package acceptance

import (
	"github.com/sarchlab/pciedma/dma/pciewrite"
	"github.com/sarchlab/pciedma/sim"
)

// DescAgent submits descriptors to a DMA engine and collects the statuses.
// It checks that every status matches the oldest descriptor that has not
// been answered.
type DescAgent struct {
	*sim.TickingComponent

	DescOut  sim.Port
	StatusIn sim.Port

	dst sim.RemotePort

	pending     []pciewrite.Descriptor
	outstanding []pciewrite.Descriptor
	statuses    []*pciewrite.WriteDescStatus
	err         error
}

// NewDescAgent creates an agent that sends descriptors to dst.
func NewDescAgent(
	name string,
	engine sim.Engine,
	freq sim.Freq,
	dst sim.RemotePort,
) *DescAgent {
	a := &DescAgent{dst: dst}
	a.TickingComponent = sim.NewTickingComponent(name, engine, freq, a)

	a.DescOut = sim.NewPort(a, 1, 1, name+".DescOut")
	a.StatusIn = sim.NewPort(a, 4, 1, name+".StatusIn")
	a.AddPort("DescOut", a.DescOut)
	a.AddPort("StatusIn", a.StatusIn)

	return a
}

// Submit queues a descriptor. It is sent as soon as the engine is ready.
func (a *DescAgent) Submit(desc pciewrite.Descriptor) {
	a.pending = append(a.pending, desc)
	a.TickLater()
}

// Idle tells if every submitted descriptor has been answered.
func (a *DescAgent) Idle() bool {
	return len(a.pending) == 0 && len(a.outstanding) == 0
}

// NumOutstanding returns the number of descriptors sent but not answered.
func (a *DescAgent) NumOutstanding() int {
	return len(a.outstanding)
}

// Statuses returns every status received, oldest first.
func (a *DescAgent) Statuses() []*pciewrite.WriteDescStatus {
	return a.statuses
}

// Err returns the first status that does not match its descriptor.
func (a *DescAgent) Err() error {
	return a.err
}

// Reset forgets every descriptor and status.
func (a *DescAgent) Reset() {
	a.pending = nil
	a.outstanding = nil
	a.statuses = nil
	a.err = nil
	a.DescOut.Clear()
	a.StatusIn.Clear()
}

// Tick sends at most one descriptor and takes at most one status.
func (a *DescAgent) Tick() (madeProgress bool) {
	madeProgress = a.receive() || madeProgress
	madeProgress = a.send() || madeProgress

	return madeProgress
}

func (a *DescAgent) send() bool {
	if len(a.pending) == 0 {
		return false
	}

	req := pciewrite.WriteDescReqBuilder{}.
		WithSrc(a.DescOut.AsRemote()).
		WithDst(a.dst).
		WithDescriptor(a.pending[0]).
		Build()

	if err := a.DescOut.Send(req); err != nil {
		return false
	}

	a.outstanding = append(a.outstanding, a.pending[0])
	a.pending = a.pending[1:]

	return true
}

func (a *DescAgent) receive() bool {
	msg := a.StatusIn.RetrieveIncoming()
	if msg == nil {
		return false
	}

	status := msg.(*pciewrite.WriteDescStatus)
	a.statuses = append(a.statuses, status)

	if len(a.outstanding) == 0 {
		a.fail(&MismatchError{What: "unexpected status", Got: status.Tag})
		return true
	}

	want := a.outstanding[0]
	a.outstanding = a.outstanding[1:]

	if status.Tag != want.Tag {
		a.fail(&MismatchError{
			What: "status tag",
			Addr: want.PCIeAddr,
			Want: want.Tag,
			Got:  status.Tag,
		})
	}

	return true
}

func (a *DescAgent) fail(err error) {
	if a.err == nil {
		a.err = err
	}
}
