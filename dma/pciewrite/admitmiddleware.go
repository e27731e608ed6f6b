package pciewrite

import (
	"log"

	"github.com/sarchlab/pciedma/tracing"
)

// admitMiddleware moves descriptors from the Desc port into the admission
// slot and from the slot into the active operation.
type admitMiddleware struct {
	*Comp
}

func (m *admitMiddleware) Tick() (madeProgress bool) {
	madeProgress = m.segment() || madeProgress
	madeProgress = m.admit() || madeProgress

	return madeProgress
}

func (m *admitMiddleware) segment() bool {
	if m.op != nil || m.slot == nil {
		return false
	}

	req := m.slot
	m.slot = nil

	desc := req.Descriptor
	wordSize := uint64(m.geometry.SegDataWidth)

	m.op = &activeOp{
		req: req,
		txns: PlanTransactions(
			desc.PCIeAddr, desc.Len, m.maxPayloadSize, m.busWidth),
		nextFetch: desc.RAMAddr - desc.RAMAddr%wordSize,
		fetchEnd:  desc.RAMAddr + desc.Len,
	}

	if desc.Len == 0 {
		m.op.nextFetch = m.op.fetchEnd
	}

	return true
}

func (m *admitMiddleware) admit() bool {
	if !m.enabled || m.slot != nil {
		return false
	}

	msg := m.descPort.RetrieveIncoming()
	if msg == nil {
		return false
	}

	req, ok := msg.(*WriteDescReq)
	if !ok {
		log.Panicf("pciewrite: unsupported message type %T", msg)
	}

	m.descMustFit(req.Descriptor)

	m.slot = req
	m.ledger = append(m.ledger, req.Tag)
	m.admitted++

	tracing.StartTask(req.ID, "", m.Comp, TaskKind,
		req.Descriptor.String(), req.Descriptor)

	return true
}

func fitsIn(v uint64, width int) bool {
	return width >= 64 || v < uint64(1)<<width
}

// rangeFitsIn tells if [addr, addr+n) lies below 2^width. A range must not
// touch the last byte of a 64 bit space, where addr+n wraps to 0.
func rangeFitsIn(addr, n uint64, width int) bool {
	end := addr + n
	if end < addr {
		return false
	}

	return width >= 64 || end <= uint64(1)<<width
}

func (m *admitMiddleware) descMustFit(d Descriptor) {
	if !fitsIn(d.PCIeAddr, m.pcieAddrWidth) {
		log.Panicf("pciewrite: PCIe address 0x%x is wider than %d bits",
			d.PCIeAddr, m.pcieAddrWidth)
	}

	if !rangeFitsIn(d.PCIeAddr, d.Len, m.pcieAddrWidth) {
		log.Panicf("pciewrite: PCIe range 0x%x+%d passes the end of the "+
			"%d bit address space", d.PCIeAddr, d.Len, m.pcieAddrWidth)
	}

	if !fitsIn(d.RAMSel, m.geometry.RAMSelWidth()) {
		log.Panicf("pciewrite: RAM select %d is wider than %d bits",
			d.RAMSel, m.geometry.RAMSelWidth())
	}

	if !fitsIn(d.RAMAddr, m.geometry.RAMAddrWidth()) {
		log.Panicf("pciewrite: RAM address 0x%x is wider than %d bits",
			d.RAMAddr, m.geometry.RAMAddrWidth())
	}

	if !fitsIn(d.Len, m.lenWidth) {
		log.Panicf("pciewrite: length %d is wider than %d bits",
			d.Len, m.lenWidth)
	}

	if !fitsIn(d.Tag, m.tagWidth) {
		log.Panicf("pciewrite: tag %d is wider than %d bits",
			d.Tag, m.tagWidth)
	}
}
