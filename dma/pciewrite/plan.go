package pciewrite

import (
	"log"

	"github.com/sarchlab/pciedma/pcie"
)

// A Transaction is one memory write request of a descriptor.
type Transaction struct {
	Addr      uint64
	Len       uint64
	FirstMask pcie.ByteMask
	LastMask  pcie.ByteMask
	NumBeats  int
}

// End returns the address right after the last byte of the transaction.
func (t Transaction) End() uint64 {
	return t.Addr + t.Len
}

// PlanTransactions splits a write of n bytes to remote address addr into
// requests. Each request ends at the next mps aligned address or at the end
// of the write. A zero length write has no request.
func PlanTransactions(addr, n, mps uint64, busWidth int) []Transaction {
	if mps == 0 || mps&(mps-1) != 0 || mps > pcie.PageSize {
		log.Panicf("pciewrite: max payload size %d is not a power of two "+
			"no larger than %d", mps, pcie.PageSize)
	}

	w := uint64(busWidth)
	end := addr + n

	if end < addr {
		log.Panicf("pciewrite: write of %d bytes at 0x%x wraps the "+
			"address space", n, addr)
	}

	var txns []Transaction

	for r := addr; r < end; {
		txnEnd := min(r-r%mps+mps, end)
		length := txnEnd - r

		t := Transaction{
			Addr:      r,
			Len:       length,
			FirstMask: pcie.LaneMask(busWidth, int(r%w), length),
			NumBeats:  pcie.BeatsInTransaction(busWidth, r, length),
		}

		if t.NumBeats == 1 {
			t.LastMask = t.FirstMask
		} else {
			t.LastMask = pcie.LaneMask(busWidth, 0, (txnEnd-1)%w+1)
		}

		txns = append(txns, t)
		r = txnEnd
	}

	return txns
}
