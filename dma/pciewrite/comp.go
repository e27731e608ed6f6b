// Package pciewrite implements a descriptor driven DMA engine that copies
// data from a segmented local RAM to host memory as PCIe memory writes.
//
// A descriptor goes through the engine in stages. The admission slot takes
// it from the Desc port. The segmenter splits the remote range into
// requests. The read issuer walks the local range word by word and reads
// the words from the RAM segments. The emitter packs the words into beats,
// aligned to the remote address, and sends them on the RQ port. When the
// last beat is accepted, a status is queued for the Status port.
package pciewrite

import (
	"fmt"

	"github.com/sarchlab/pciedma/mem/segmentram"
	"github.com/sarchlab/pciedma/pcie"
	"github.com/sarchlab/pciedma/sim"
	"github.com/sarchlab/pciedma/tracing"
)

// TaskKind is the tracing kind of the task that spans one descriptor.
const TaskKind = "dma_write"

// State is the phase of the engine.
type State int

// The phases the engine reports.
const (
	StateIdle State = iota
	StateAdmitted
	StateFetching
	StateEmitting
	StateStatusPending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAdmitted:
		return "admitted"
	case StateFetching:
		return "fetching"
	case StateEmitting:
		return "emitting"
	case StateStatusPending:
		return "status_pending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type readCtx struct {
	cmdID    string
	row      uint64
	wordAddr uint64
}

type activeOp struct {
	req  *WriteDescReq
	txns []Transaction

	txnIdx  int
	beatIdx int
	emitted uint64

	nextFetch uint64
	fetchEnd  uint64
}

func (o *activeOp) desc() Descriptor {
	return o.req.Descriptor
}

func (o *activeOp) allIssued() bool {
	return o.nextFetch >= o.fetchEnd
}

type heldBeat struct {
	beat  *pcie.Beat
	bytes uint64
}

// Comp is a DMA write engine.
type Comp struct {
	*sim.TickingComponent
	sim.MiddlewareHolder

	descPort   sim.Port
	statusPort sim.Port
	rqPort     sim.Port
	segPorts   []sim.Port
	rqDst      sim.RemotePort
	statusDst  sim.RemotePort
	segDsts    []sim.RemotePort

	busWidth       int
	geometry       segmentram.Geometry
	pcieAddrWidth  int
	lenWidth       int
	tagWidth       int
	maxPayloadSize uint64
	requesterID    uint16
	fetchWindow    int

	enabled bool

	slot        *WriteDescReq
	op          *activeOp
	held        *heldBeat
	readCtxs    [][]readCtx
	words       map[uint64][]byte
	inWindow    int
	statusQueue sim.Buffer
	ledger      []uint64

	admitted  uint64
	completed uint64
}

// DescPort returns the port that takes descriptors.
func (c *Comp) DescPort() sim.Port {
	return c.descPort
}

// StatusPort returns the port that reports finished descriptors.
func (c *Comp) StatusPort() sim.Port {
	return c.statusPort
}

// RQPort returns the port that sends memory write beats.
func (c *Comp) RQPort() sim.Port {
	return c.rqPort
}

// SegPort returns the port that reads segment i of the local RAM.
func (c *Comp) SegPort(i int) sim.Port {
	return c.segPorts[i]
}

// NumSegPorts returns the number of segment ports.
func (c *Comp) NumSegPorts() int {
	return len(c.segPorts)
}

// BusWidth returns the number of bytes per beat.
func (c *Comp) BusWidth() int {
	return c.busWidth
}

// MaxPayloadSize returns the largest request the engine sends.
func (c *Comp) MaxPayloadSize() uint64 {
	return c.maxPayloadSize
}

// SetEnabled allows or blocks the admission of descriptors. A descriptor
// that has been admitted always runs to completion.
func (c *Comp) SetEnabled(enabled bool) {
	c.enabled = enabled

	if enabled {
		c.TickLater()
	}
}

// Enabled tells if the engine admits descriptors.
func (c *Comp) Enabled() bool {
	return c.enabled
}

// NumAdmitted returns the number of descriptors admitted since the engine
// was built.
func (c *Comp) NumAdmitted() uint64 {
	return c.admitted
}

// NumCompleted returns the number of statuses produced since the engine was
// built.
func (c *Comp) NumCompleted() uint64 {
	return c.completed
}

// State returns the phase of the engine.
func (c *Comp) State() State {
	switch {
	case c.op != nil && !c.op.allIssued():
		return StateFetching
	case c.op != nil:
		return StateEmitting
	case c.slot != nil:
		return StateAdmitted
	case c.statusQueue.Size() > 0:
		return StateStatusPending
	default:
		return StateIdle
	}
}

// Buffers returns the internal queues of the engine.
func (c *Comp) Buffers() []sim.Buffer {
	return []sim.Buffer{c.statusQueue}
}

// Reset returns the engine to idle. The descriptor in the admission slot,
// the active descriptor, every read in flight and every queued status are
// dropped. The tasks of the dropped descriptors end here.
func (c *Comp) Reset() {
	if c.op != nil {
		tracing.EndTask(c.op.req.ID, c)
	}

	if c.slot != nil {
		tracing.EndTask(c.slot.ID, c)
	}

	c.slot = nil
	c.op = nil
	c.held = nil

	for i := range c.readCtxs {
		c.readCtxs[i] = nil
	}

	clear(c.words)
	c.inWindow = 0
	c.statusQueue.Clear()
	c.ledger = nil

	c.descPort.Clear()
	c.statusPort.Clear()
	c.rqPort.Clear()

	for _, p := range c.segPorts {
		p.Clear()
	}
}
