package pcie

import (
	"log"
	"math/bits"
)

// MaxBusWidth is the widest data bus, in bytes, a ByteMask can describe.
const MaxBusWidth = 64

// ByteMask marks the valid byte lanes of a beat. Bit i stands for lane i.
type ByteMask uint64

// LaneMask returns the lanes [start, min(width, start+remaining)).
func LaneMask(width, start int, remaining uint64) ByteMask {
	if width <= 0 || width > MaxBusWidth {
		log.Panicf("pcie: bus width %d is not in (0, %d]", width, MaxBusWidth)
	}

	if start < 0 || start >= width {
		log.Panicf("pcie: start lane %d is not on a %d byte bus", start, width)
	}

	end := uint64(width)
	if remaining < end-uint64(start) {
		end = uint64(start) + remaining
	}

	return maskBelow(end) &^ maskBelow(uint64(start))
}

func maskBelow(n uint64) ByteMask {
	if n >= 64 {
		return ^ByteMask(0)
	}

	return ByteMask(1)<<n - 1
}

// Has tells if lane i is valid.
func (m ByteMask) Has(i int) bool {
	return m&(1<<i) != 0
}

// Count returns the number of valid lanes.
func (m ByteMask) Count() int {
	return bits.OnesCount64(uint64(m))
}

// Lowest returns the lowest valid lane, or -1 if no lane is valid.
func (m ByteMask) Lowest() int {
	if m == 0 {
		return -1
	}

	return bits.TrailingZeros64(uint64(m))
}

// IsContiguous tells if the valid lanes form one run.
func (m ByteMask) IsContiguous() bool {
	if m == 0 {
		return true
	}

	shifted := uint64(m) >> bits.TrailingZeros64(uint64(m))

	return shifted&(shifted+1) == 0
}

// BeatsInTransaction returns how many beats of width bytes carry n bytes
// starting at addr, given lanes follow addr mod width.
func BeatsInTransaction(width int, addr, n uint64) int {
	if n == 0 {
		return 0
	}

	w := uint64(width)
	first := addr / w
	last := (addr + n - 1) / w

	return int(last - first + 1)
}
