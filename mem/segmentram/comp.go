// Package segmentram models a RAM split into independently addressed
// segments. Each segment serves one row per cycle through its own port, with
// its own latency, so responses of different segments are not in lockstep.
package segmentram

import (
	"fmt"
	"log"
	"slices"

	"github.com/sarchlab/pciedma/mem"
	"github.com/sarchlab/pciedma/pipelining"
	"github.com/sarchlab/pciedma/sim"
	"github.com/sarchlab/pciedma/tracing"
)

type segment struct {
	port            sim.Port
	pending         sim.Buffer
	pipeline        pipelining.Pipeline
	postPipelineBuf sim.Buffer
	storage         *mem.Storage
}

type pipelineItem struct {
	cmd *ReadCmd
}

func (i *pipelineItem) TaskID() string {
	return i.cmd.ID
}

// Comp is a segmented RAM. Commands on port Seg[i] read row Row of region Sel
// from segment i.
type Comp struct {
	*sim.TickingComponent
	sim.MiddlewareHolder

	geometry Geometry
	segments []segment
	paused   bool

	// IDs of the commands taken but not yet answered.
	inflight map[string]struct{}
}

// Geometry returns the address layout of the RAM.
func (c *Comp) Geometry() Geometry {
	return c.geometry
}

// SegPort returns the port that serves segment i.
func (c *Comp) SegPort(i int) sim.Port {
	return c.segments[i].port
}

// SetPaused stops or resumes all segments. While paused, no command is
// taken and no response is sent.
func (c *Comp) SetPaused(paused bool) {
	c.paused = paused

	if !paused {
		c.TickLater()
	}
}

// Paused tells if the RAM is paused.
func (c *Comp) Paused() bool {
	return c.paused
}

// Tick updates the component state cycle by cycle.
func (c *Comp) Tick() bool {
	if c.paused {
		return false
	}

	return c.MiddlewareHolder.Tick()
}

// Reset drops every command in flight and ends their read tasks. The stored
// data is kept.
func (c *Comp) Reset() {
	ids := make([]string, 0, len(c.inflight))
	for id := range c.inflight {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	for _, id := range ids {
		tracing.EndTask(id, c)
	}

	clear(c.inflight)

	for i := range c.segments {
		s := &c.segments[i]
		s.pending.Clear()
		s.pipeline.Clear()
		s.postPipelineBuf.Clear()
		s.port.Clear()
	}
}

// Buffers returns the internal queues of all segments.
func (c *Comp) Buffers() []sim.Buffer {
	bufs := make([]sim.Buffer, 0, 2*len(c.segments))
	for _, s := range c.segments {
		bufs = append(bufs, s.pending, s.postPipelineBuf)
	}

	return bufs
}

func (c *Comp) rowOffset(sel, row uint64) uint64 {
	return (sel*c.geometry.Rows() + row) * uint64(c.geometry.SegDataWidth)
}

func (c *Comp) regionRangeMustFit(sel, addr, n uint64) error {
	if sel >= uint64(c.geometry.SelCount) {
		return fmt.Errorf("segmentram: region %d does not exist", sel)
	}

	size := c.geometry.RegionSize()
	if addr > size || n > size-addr {
		return fmt.Errorf("segmentram: range [0x%x, +%d) exceeds region size 0x%x",
			addr, n, size)
	}

	return nil
}

// WriteMem writes data to region sel starting at addr, bypassing the ports.
func (c *Comp) WriteMem(sel, addr uint64, data []byte) error {
	if err := c.regionRangeMustFit(sel, addr, uint64(len(data))); err != nil {
		return err
	}

	for done := 0; done < len(data); {
		loc := c.geometry.Locate(addr + uint64(done))
		n := min(c.geometry.SegDataWidth-loc.Offset, len(data)-done)

		err := c.segments[loc.Seg].storage.Write(
			c.rowOffset(sel, loc.Row)+uint64(loc.Offset),
			data[done:done+n])
		if err != nil {
			return fmt.Errorf("segmentram: write segment %d: %w", loc.Seg, err)
		}

		done += n
	}

	return nil
}

// ReadMem reads n bytes of region sel starting at addr, bypassing the ports.
func (c *Comp) ReadMem(sel, addr, n uint64) ([]byte, error) {
	if err := c.regionRangeMustFit(sel, addr, n); err != nil {
		return nil, err
	}

	res := make([]byte, 0, n)

	for uint64(len(res)) < n {
		loc := c.geometry.Locate(addr + uint64(len(res)))
		chunk := min(uint64(c.geometry.SegDataWidth-loc.Offset),
			n-uint64(len(res)))

		data, err := c.segments[loc.Seg].storage.Read(
			c.rowOffset(sel, loc.Row)+uint64(loc.Offset), chunk)
		if err != nil {
			return nil, fmt.Errorf("segmentram: read segment %d: %w",
				loc.Seg, err)
		}

		res = append(res, data...)
	}

	return res, nil
}

type middleware struct {
	*Comp
}

func (m *middleware) Tick() (madeProgress bool) {
	madeProgress = m.respond() || madeProgress
	madeProgress = m.tickPipelines() || madeProgress
	madeProgress = m.feedPipelines() || madeProgress
	madeProgress = m.acceptIncoming() || madeProgress

	return madeProgress
}

func (m *middleware) respond() bool {
	madeProgress := false

	for i := range m.segments {
		s := &m.segments[i]

		itemIfc := s.postPipelineBuf.Peek()
		if itemIfc == nil {
			continue
		}

		cmd := itemIfc.(*pipelineItem).cmd

		data, err := s.storage.Read(
			m.rowOffset(cmd.Sel, cmd.Row),
			uint64(m.geometry.SegDataWidth))
		if err != nil {
			log.Panic(err)
		}

		rsp := ReadRspBuilder{}.
			WithSrc(s.port.AsRemote()).
			WithDst(cmd.Src).
			WithRspTo(cmd.ID).
			WithData(data).
			Build()

		if err := s.port.Send(rsp); err != nil {
			continue
		}

		tracing.EndTask(cmd.ID, m.Comp)
		delete(m.inflight, cmd.ID)

		s.postPipelineBuf.Pop()
		madeProgress = true
	}

	return madeProgress
}

func (m *middleware) tickPipelines() bool {
	madeProgress := false

	for i := range m.segments {
		madeProgress = m.segments[i].pipeline.Tick() || madeProgress
	}

	return madeProgress
}

func (m *middleware) feedPipelines() bool {
	madeProgress := false

	for i := range m.segments {
		s := &m.segments[i]

		if !s.pipeline.CanAccept() {
			continue
		}

		itemIfc := s.pending.Pop()
		if itemIfc == nil {
			continue
		}

		s.pipeline.Accept(itemIfc.(*pipelineItem))
		madeProgress = true
	}

	return madeProgress
}

func (m *middleware) acceptIncoming() bool {
	madeProgress := false

	for i := range m.segments {
		s := &m.segments[i]

		if !s.pending.CanPush() {
			continue
		}

		msg := s.port.RetrieveIncoming()
		if msg == nil {
			continue
		}

		cmd, ok := msg.(*ReadCmd)
		if !ok {
			log.Panicf("segmentram: unsupported message type %T", msg)
		}

		m.cmdMustBeInRange(cmd)

		tracing.StartTask(cmd.ID, "", m.Comp, "seg_read",
			fmt.Sprintf("Seg[%d]", i), nil)
		m.inflight[cmd.ID] = struct{}{}

		s.pending.Push(&pipelineItem{cmd: cmd})
		madeProgress = true
	}

	return madeProgress
}

func (m *middleware) cmdMustBeInRange(cmd *ReadCmd) {
	if cmd.Sel >= uint64(m.geometry.SelCount) {
		log.Panicf("segmentram: region %d does not exist", cmd.Sel)
	}

	if cmd.Row >= m.geometry.Rows() {
		log.Panicf("segmentram: row %d does not exist", cmd.Row)
	}
}
