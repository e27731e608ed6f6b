package pciewrite

import (
	"fmt"
	"log"

	"github.com/sarchlab/pciedma/pcie"
	"github.com/sarchlab/pciedma/tracing"
)

// emitMiddleware packs fetched words into beats and sends them on the RQ
// port. A beat that the RQ port does not take is held and offered again in
// the next cycle.
type emitMiddleware struct {
	*Comp
}

func (m *emitMiddleware) Tick() bool {
	if m.op == nil {
		return false
	}

	if len(m.op.txns) == 0 {
		return m.finish()
	}

	if m.held == nil {
		m.held = m.buildBeat()
		if m.held == nil {
			return false
		}
	}

	if m.held.beat.Last && m.isFinalTxn() && !m.statusQueue.CanPush() {
		return false
	}

	if err := m.rqPort.Send(m.held.beat); err != nil {
		return false
	}

	m.beatAccepted()

	return true
}

func (m *emitMiddleware) isFinalTxn() bool {
	return m.op.txnIdx == len(m.op.txns)-1
}

// buildBeat returns nil if some word of the beat has not arrived yet.
func (m *emitMiddleware) buildBeat() *heldBeat {
	op := m.op
	desc := op.desc()
	txn := op.txns[op.txnIdx]

	w := uint64(m.busWidth)
	remote := desc.PCIeAddr + op.emitted
	local := desc.RAMAddr + op.emitted
	lane := remote % w
	n := min(w-lane, txn.End()-remote)

	if !m.wordsArrived(local, n) {
		return nil
	}

	data := make([]byte, m.busWidth)
	m.copyLocal(data[lane:lane+n], local)

	b := pcie.BeatBuilder{}.
		WithSrc(m.rqPort.AsRemote()).
		WithDst(m.rqDst).
		WithData(data, pcie.LaneMask(m.busWidth, int(lane), n)).
		WithTxnID(fmt.Sprintf("%s.%d", op.req.ID, op.txnIdx))

	if op.beatIdx == 0 {
		h := pcie.NewMWrHeader(txn.Addr, txn.Len)
		h.RequesterID = m.requesterID
		h.Tag = uint8(desc.Tag)
		b = b.WithHeader(h)
	}

	if op.beatIdx == txn.NumBeats-1 {
		b = b.AsLast()
	}

	return &heldBeat{beat: b.Build(), bytes: n}
}

func (m *emitMiddleware) wordsArrived(local, n uint64) bool {
	wordSize := uint64(m.geometry.SegDataWidth)

	for wa := m.geometry.WordAddr(local); wa < local+n; wa += wordSize {
		if _, ok := m.words[wa]; !ok {
			return false
		}
	}

	return true
}

func (m *emitMiddleware) copyLocal(dst []byte, local uint64) {
	wordSize := uint64(m.geometry.SegDataWidth)

	for copied := 0; copied < len(dst); {
		addr := local + uint64(copied)
		word := m.words[m.geometry.WordAddr(addr)]
		copied += copy(dst[copied:], word[addr%wordSize:])
	}
}

func (m *emitMiddleware) beatAccepted() {
	op := m.op
	beat := m.held.beat

	op.emitted += m.held.bytes
	op.beatIdx++
	m.held = nil

	m.releaseConsumedWords(op.desc().RAMAddr + op.emitted)

	if !beat.Last {
		return
	}

	txn := op.txns[op.txnIdx]
	if op.beatIdx != txn.NumBeats {
		log.Panicf("pciewrite: request %d of tag %d ends after %d beats, "+
			"want %d", op.txnIdx, op.desc().Tag, op.beatIdx, txn.NumBeats)
	}

	tracing.AddTaskStep(op.req.ID, m.Comp, fmt.Sprintf("tlp 0x%x", txn.Addr))

	op.txnIdx++
	op.beatIdx = 0

	if op.txnIdx == len(op.txns) {
		m.finish()
	}
}

// releaseConsumedWords drops every buffered word that lies fully below the
// local cursor.
func (m *emitMiddleware) releaseConsumedWords(cursor uint64) {
	wordSize := uint64(m.geometry.SegDataWidth)

	for wa := range m.words {
		if wa+wordSize <= cursor {
			delete(m.words, wa)
			m.inWindow--
		}
	}
}

// finish queues the status of the active descriptor. It returns false if the
// status queue is full.
func (m *emitMiddleware) finish() bool {
	if !m.statusQueue.CanPush() {
		return false
	}

	op := m.op
	desc := op.desc()

	if len(m.ledger) == 0 || m.ledger[0] != desc.Tag {
		log.Panicf("pciewrite: status of tag %d is not for the oldest "+
			"admitted descriptor", desc.Tag)
	}

	m.ledger = m.ledger[1:]

	status := WriteDescStatusBuilder{}.
		WithSrc(m.statusPort.AsRemote()).
		WithDst(m.statusDst).
		WithTag(desc.Tag).
		WithOutcome(Completed).
		WithRspTo(op.req.ID).
		Build()
	m.statusQueue.Push(status)

	clear(m.words)
	m.inWindow = 0
	m.op = nil
	m.completed++

	tracing.EndTask(op.req.ID, m.Comp)

	return true
}
