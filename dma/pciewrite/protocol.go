package pciewrite

import (
	"fmt"

	"github.com/sarchlab/pciedma/sim"
)

var descByteOverhead = 16
var statusByteOverhead = 4

// A Descriptor asks the engine to copy Len bytes from RAMAddr of local region
// RAMSel to the remote address PCIeAddr.
type Descriptor struct {
	PCIeAddr uint64
	RAMSel   uint64
	RAMAddr  uint64
	Len      uint64
	Tag      uint64
}

func (d Descriptor) String() string {
	return fmt.Sprintf("tag %d: %d bytes from %d:0x%x to 0x%x",
		d.Tag, d.Len, d.RAMSel, d.RAMAddr, d.PCIeAddr)
}

// A WriteDescReq submits a descriptor.
type WriteDescReq struct {
	sim.MsgMeta

	Descriptor
}

// Meta returns the message meta.
func (r *WriteDescReq) Meta() *sim.MsgMeta {
	return &r.MsgMeta
}

// Clone returns a copy of the request with a new ID.
func (r *WriteDescReq) Clone() sim.Msg {
	cloned := *r
	cloned.ID = sim.GetIDGenerator().Generate()

	return &cloned
}

// WriteDescReqBuilder can build descriptor requests.
type WriteDescReqBuilder struct {
	src, dst sim.RemotePort
	desc     Descriptor
}

// WithSrc sets the source of the request.
func (b WriteDescReqBuilder) WithSrc(src sim.RemotePort) WriteDescReqBuilder {
	b.src = src
	return b
}

// WithDst sets the destination of the request.
func (b WriteDescReqBuilder) WithDst(dst sim.RemotePort) WriteDescReqBuilder {
	b.dst = dst
	return b
}

// WithDescriptor sets the descriptor to submit.
func (b WriteDescReqBuilder) WithDescriptor(
	desc Descriptor,
) WriteDescReqBuilder {
	b.desc = desc
	return b
}

// Build creates the request.
func (b WriteDescReqBuilder) Build() *WriteDescReq {
	r := &WriteDescReq{Descriptor: b.desc}
	r.ID = sim.GetIDGenerator().Generate()
	r.Src = b.src
	r.Dst = b.dst
	r.TrafficBytes = descByteOverhead

	return r
}

// Outcome tells how a descriptor finished.
type Outcome int

// Completed is the only outcome. A descriptor never fails.
const (
	Completed Outcome = iota
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// A WriteDescStatus reports that every byte of a descriptor has been sent.
type WriteDescStatus struct {
	sim.MsgMeta

	Tag       uint64
	Outcome   Outcome
	RespondTo string
}

// Meta returns the message meta.
func (s *WriteDescStatus) Meta() *sim.MsgMeta {
	return &s.MsgMeta
}

// Clone returns a copy of the status with a new ID.
func (s *WriteDescStatus) Clone() sim.Msg {
	cloned := *s
	cloned.ID = sim.GetIDGenerator().Generate()

	return &cloned
}

// GetRspTo returns the ID of the request the status answers.
func (s *WriteDescStatus) GetRspTo() string {
	return s.RespondTo
}

// WriteDescStatusBuilder can build statuses.
type WriteDescStatusBuilder struct {
	src, dst sim.RemotePort
	tag      uint64
	outcome  Outcome
	rspTo    string
}

// WithSrc sets the source of the status.
func (b WriteDescStatusBuilder) WithSrc(
	src sim.RemotePort,
) WriteDescStatusBuilder {
	b.src = src
	return b
}

// WithDst sets the destination of the status.
func (b WriteDescStatusBuilder) WithDst(
	dst sim.RemotePort,
) WriteDescStatusBuilder {
	b.dst = dst
	return b
}

// WithTag sets the tag of the finished descriptor.
func (b WriteDescStatusBuilder) WithTag(tag uint64) WriteDescStatusBuilder {
	b.tag = tag
	return b
}

// WithOutcome sets the outcome.
func (b WriteDescStatusBuilder) WithOutcome(o Outcome) WriteDescStatusBuilder {
	b.outcome = o
	return b
}

// WithRspTo sets the ID of the request being answered.
func (b WriteDescStatusBuilder) WithRspTo(id string) WriteDescStatusBuilder {
	b.rspTo = id
	return b
}

// Build creates the status.
func (b WriteDescStatusBuilder) Build() *WriteDescStatus {
	s := &WriteDescStatus{
		Tag:       b.tag,
		Outcome:   b.outcome,
		RespondTo: b.rspTo,
	}
	s.ID = sim.GetIDGenerator().Generate()
	s.Src = b.src
	s.Dst = b.dst
	s.TrafficBytes = statusByteOverhead

	return s
}
