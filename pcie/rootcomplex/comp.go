// Package rootcomplex models the host side of a PCIe link. It takes memory
// write requests beat by beat, checks that every request is legal, and writes
// the payload into host memory.
package rootcomplex

import (
	"encoding/hex"
	"log"

	"github.com/sarchlab/pciedma/mem"
	"github.com/sarchlab/pciedma/pcie"
	"github.com/sarchlab/pciedma/sim"
)

// HookPosTLPReceived marks the completion of a memory write request. The hook
// item is a TLPRecord.
var HookPosTLPReceived = &sim.HookPos{Name: "TLPReceived"}

// A TLPRecord describes one completed memory write request.
type TLPRecord struct {
	Cycle     uint64
	Address   uint64
	ByteCount uint64
	NumBeats  int
	Tag       uint8
	Header    string
}

// Stats counts the traffic the root complex has received.
type Stats struct {
	TLPs  uint64
	Beats uint64
	Bytes uint64
}

type rxTLP struct {
	header   pcie.MWrHeader
	received uint64
	beats    int
}

// Comp is a root complex that owns host memory.
type Comp struct {
	*sim.TickingComponent
	sim.MiddlewareHolder

	rqPort  sim.Port
	storage *mem.Storage

	busWidth         int
	maxPayloadSize   uint64
	requesterID      uint16
	checkRequesterID bool
	keepLog          bool

	paused  bool
	current *rxTLP
	stats   Stats
	tlpLog  []TLPRecord
}

// RQPort returns the port that receives memory write beats.
func (c *Comp) RQPort() sim.Port {
	return c.rqPort
}

// SetPaused stops or resumes taking beats. While paused, senders see the
// port as not ready once its buffer is full.
func (c *Comp) SetPaused(paused bool) {
	c.paused = paused

	if !paused {
		c.TickLater()
	}
}

// Paused tells if the root complex is paused.
func (c *Comp) Paused() bool {
	return c.paused
}

// Stats returns the traffic counters.
func (c *Comp) Stats() Stats {
	return c.stats
}

// TLPLog returns the completed requests, oldest first. It is empty unless
// the log is enabled in the builder.
func (c *Comp) TLPLog() []TLPRecord {
	return c.tlpLog
}

// ReadMem reads host memory.
func (c *Comp) ReadMem(addr, n uint64) ([]byte, error) {
	return c.storage.Read(addr, n)
}

// WriteMem writes host memory.
func (c *Comp) WriteMem(addr uint64, data []byte) error {
	return c.storage.Write(addr, data)
}

// FillMem sets n bytes of host memory to v.
func (c *Comp) FillMem(addr, n uint64, v byte) error {
	return c.storage.Fill(addr, n, v)
}

// Tick takes at most one beat.
func (c *Comp) Tick() bool {
	if c.paused {
		return false
	}

	return c.MiddlewareHolder.Tick()
}

// Reset drops the partially received request and every buffered beat. Host
// memory and counters are kept.
func (c *Comp) Reset() {
	c.current = nil
	c.rqPort.Clear()
}

type middleware struct {
	*Comp
}

func (m *middleware) Tick() bool {
	msg := m.rqPort.PeekIncoming()
	if msg == nil {
		return false
	}

	beat, ok := msg.(*pcie.Beat)
	if !ok {
		log.Panicf("rootcomplex: unsupported message type %T", msg)
	}

	m.takeBeat(beat)
	m.rqPort.RetrieveIncoming()

	return true
}

func (m *middleware) takeBeat(beat *pcie.Beat) {
	if m.current == nil {
		m.startTLP(beat)
	} else if beat.First {
		log.Panicf("rootcomplex: new request before the request at 0x%x "+
			"ends", m.current.header.Address)
	}

	tlp := m.current
	h := tlp.header
	addr := h.Address + tlp.received
	start := int(addr % uint64(m.busWidth))
	want := pcie.LaneMask(m.busWidth, start, h.ByteCount-tlp.received)

	if len(beat.Data) != m.busWidth {
		log.Panicf("rootcomplex: beat carries %d bytes on a %d byte bus",
			len(beat.Data), m.busWidth)
	}

	if beat.Keep != want {
		log.Panicf("rootcomplex: beat %d of request at 0x%x has lanes %#x, "+
			"want %#x", tlp.beats, h.Address, uint64(beat.Keep), uint64(want))
	}

	n := want.Count()

	err := m.storage.Write(addr, beat.Data[start:start+n])
	if err != nil {
		log.Panicf("rootcomplex: %v", err)
	}

	tlp.received += uint64(n)
	tlp.beats++
	m.stats.Beats++
	m.stats.Bytes += uint64(n)

	done := tlp.received == h.ByteCount
	if beat.Last != done {
		log.Panicf("rootcomplex: request at 0x%x has last=%t after %d of %d "+
			"bytes", h.Address, beat.Last, tlp.received, h.ByteCount)
	}

	if done {
		m.endTLP()
	}
}

func (m *middleware) startTLP(beat *pcie.Beat) {
	if !beat.First || beat.Header == nil {
		log.Panicf("rootcomplex: request must start with a header beat")
	}

	h := *beat.Header
	m.headerMustBeLegal(h)

	m.current = &rxTLP{header: h}
}

func (m *middleware) headerMustBeLegal(h pcie.MWrHeader) {
	if h.ByteCount == 0 || h.ByteCount > m.maxPayloadSize {
		log.Panicf("rootcomplex: request at 0x%x carries %d bytes, "+
			"max payload is %d", h.Address, h.ByteCount, m.maxPayloadSize)
	}

	if pcie.CrossesBoundary(h.Address, h.ByteCount, m.maxPayloadSize) {
		log.Panicf("rootcomplex: request [0x%x, +%d) crosses a %d byte "+
			"boundary", h.Address, h.ByteCount, m.maxPayloadSize)
	}

	if pcie.CrossesBoundary(h.Address, h.ByteCount, pcie.PageSize) {
		log.Panicf("rootcomplex: request [0x%x, +%d) crosses a 4 KiB "+
			"boundary", h.Address, h.ByteCount)
	}

	want := pcie.NewMWrHeader(h.Address, h.ByteCount)
	if h.DWCount != want.DWCount ||
		h.FirstBE != want.FirstBE ||
		h.LastBE != want.LastBE {
		log.Panicf("rootcomplex: request at 0x%x has length %d and byte "+
			"enables %#x/%#x, want %d and %#x/%#x", h.Address,
			h.DWCount, h.FirstBE, h.LastBE,
			want.DWCount, want.FirstBE, want.LastBE)
	}

	if m.checkRequesterID && h.RequesterID != m.requesterID {
		log.Panicf("rootcomplex: request from %#04x, want %#04x",
			h.RequesterID, m.requesterID)
	}
}

func (m *middleware) endTLP() {
	tlp := m.current
	m.current = nil
	m.stats.TLPs++

	if !m.keepLog && m.NumHooks() == 0 {
		return
	}

	rec := TLPRecord{
		Cycle:     m.CurrentCycle(),
		Address:   tlp.header.Address,
		ByteCount: tlp.header.ByteCount,
		NumBeats:  tlp.beats,
		Tag:       tlp.header.Tag,
		Header:    hex.EncodeToString(tlp.header.Encode()),
	}

	if m.keepLog {
		m.tlpLog = append(m.tlpLog, rec)
	}

	m.InvokeHook(sim.HookCtx{
		Domain: m.Comp,
		Pos:    HookPosTLPReceived,
		Item:   rec,
	})
}
