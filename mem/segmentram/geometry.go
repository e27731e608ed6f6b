package segmentram

import (
	"log"
	"math/bits"
)

// Geometry describes how a segmented RAM lays out its address space.
//
// Consecutive words of SegDataWidth bytes go to consecutive segments, so a
// sequential access touches every segment in turn.
type Geometry struct {
	SegCount     int
	SegDataWidth int
	SegAddrWidth int
	SelCount     int
}

// A Location is where a byte lives inside a segmented RAM.
type Location struct {
	Seg    int
	Row    uint64
	Offset int
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// MustBeValid panics if the geometry cannot be built.
func (g Geometry) MustBeValid() {
	if !isPowerOfTwo(g.SegCount) {
		log.Panicf("segmentram: segment count %d is not a power of two",
			g.SegCount)
	}

	if !isPowerOfTwo(g.SegDataWidth) {
		log.Panicf("segmentram: segment data width %d is not a power of two",
			g.SegDataWidth)
	}

	if g.SegAddrWidth <= 0 || g.SegAddrWidth > 32 {
		log.Panicf("segmentram: segment address width %d is out of range",
			g.SegAddrWidth)
	}

	if !isPowerOfTwo(g.SelCount) {
		log.Panicf("segmentram: select count %d is not a power of two",
			g.SelCount)
	}
}

// Rows returns the number of rows in each segment.
func (g Geometry) Rows() uint64 {
	return 1 << g.SegAddrWidth
}

// RAMAddrWidth returns the number of address bits of one region.
func (g Geometry) RAMAddrWidth() int {
	return g.SegAddrWidth + log2(g.SegCount) + log2(g.SegDataWidth)
}

// RAMSelWidth returns the number of bits that select a region.
func (g Geometry) RAMSelWidth() int {
	return log2(g.SelCount)
}

// RegionSize returns the number of bytes in one selectable region.
func (g Geometry) RegionSize() uint64 {
	return 1 << g.RAMAddrWidth()
}

// Locate maps a region address to its segment, row and byte offset. Addresses
// beyond the region wrap around.
func (g Geometry) Locate(addr uint64) Location {
	word := addr / uint64(g.SegDataWidth)

	return Location{
		Offset: int(addr % uint64(g.SegDataWidth)),
		Seg:    int(word % uint64(g.SegCount)),
		Row:    (word / uint64(g.SegCount)) % g.Rows(),
	}
}

// WordAddr returns the aligned word address that contains addr.
func (g Geometry) WordAddr(addr uint64) uint64 {
	return addr &^ uint64(g.SegDataWidth-1)
}

func log2(n int) int {
	return bits.TrailingZeros(uint(n))
}
