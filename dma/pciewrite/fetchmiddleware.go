package pciewrite

import (
	"log"

	"github.com/sarchlab/pciedma/mem/segmentram"
)

// fetchMiddleware reads the local words of the active descriptor from the
// RAM segments and collects the responses.
type fetchMiddleware struct {
	*Comp
}

func (m *fetchMiddleware) Tick() (madeProgress bool) {
	madeProgress = m.collect() || madeProgress
	madeProgress = m.issue() || madeProgress

	return madeProgress
}

func (m *fetchMiddleware) collect() bool {
	madeProgress := false

	for i, port := range m.segPorts {
		msg := port.RetrieveIncoming()
		if msg == nil {
			continue
		}

		rsp, ok := msg.(*segmentram.ReadRsp)
		if !ok {
			log.Panicf("pciewrite: unsupported message type %T", msg)
		}

		m.placeWord(i, rsp)

		madeProgress = true
	}

	return madeProgress
}

func (m *fetchMiddleware) placeWord(seg int, rsp *segmentram.ReadRsp) {
	fifo := m.readCtxs[seg]
	if len(fifo) == 0 {
		log.Panicf("pciewrite: unexpected response %s on segment %d",
			rsp.RespondTo, seg)
	}

	ctx := fifo[0]
	if ctx.cmdID != rsp.RespondTo {
		log.Panicf("pciewrite: segment %d responds to %s, want %s (row %d)",
			seg, rsp.RespondTo, ctx.cmdID, ctx.row)
	}

	if len(rsp.Data) != m.geometry.SegDataWidth {
		log.Panicf("pciewrite: segment %d returns %d bytes, want %d",
			seg, len(rsp.Data), m.geometry.SegDataWidth)
	}

	m.readCtxs[seg] = fifo[1:]
	m.words[ctx.wordAddr] = rsp.Data
}

// issue sends at most one command to each segment per cycle, in address
// order. It stops at the first segment that is not ready.
func (m *fetchMiddleware) issue() bool {
	if m.op == nil {
		return false
	}

	madeProgress := false
	wordSize := uint64(m.geometry.SegDataWidth)
	sel := m.op.desc().RAMSel

	for n := 0; n < len(m.segPorts); n++ {
		if m.op.allIssued() || m.inWindow >= m.fetchWindow {
			break
		}

		wordAddr := m.op.nextFetch
		loc := m.geometry.Locate(wordAddr)
		port := m.segPorts[loc.Seg]

		cmd := segmentram.ReadCmdBuilder{}.
			WithSrc(port.AsRemote()).
			WithDst(m.segDsts[loc.Seg]).
			WithSel(sel).
			WithRow(loc.Row).
			Build()

		if err := port.Send(cmd); err != nil {
			break
		}

		m.readCtxs[loc.Seg] = append(m.readCtxs[loc.Seg], readCtx{
			cmdID:    cmd.ID,
			row:      loc.Row,
			wordAddr: wordAddr,
		})

		m.op.nextFetch += wordSize
		m.inWindow++
		madeProgress = true
	}

	return madeProgress
}
