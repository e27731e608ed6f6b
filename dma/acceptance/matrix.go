package acceptance

import "fmt"

// A Case is one transfer of the sweep.
type Case struct {
	ID         int
	Len        uint64
	PCIeOffset uint64
	RAMSel     uint64
	RAMOffset  uint64
	Pause      bool
	PauseRAM   bool
}

func (c Case) String() string {
	return fmt.Sprintf("len %d, pcie_offset %d, ram_offset %d, pause %t",
		c.Len, c.PCIeOffset, c.RAMOffset, c.Pause)
}

// A Matrix is an ordered list of cases.
type Matrix []Case

func span(from, to uint64) []uint64 {
	s := make([]uint64, 0, to-from)
	for v := from; v < to; v++ {
		s = append(s, v)
	}

	return s
}

// NewMatrix returns every combination of length, remote offset, local offset
// and pause that the sweep covers. The offsets straddle both the start of a
// page and the end of one.
func NewMatrix() Matrix {
	lengths := append(span(1, 19), span(124, 132)...)
	lengths = append(lengths, 1024)
	pcieOffsets := append(span(8, 13), span(4092, 4100)...)
	ramOffsets := append(span(8, 41), span(4064, 4096)...)

	m := make(Matrix, 0,
		len(lengths)*len(pcieOffsets)*len(ramOffsets)*2)

	for _, n := range lengths {
		for _, po := range pcieOffsets {
			for _, ro := range ramOffsets {
				for _, pause := range []bool{false, true} {
					m = append(m, Case{
						ID:         len(m),
						Len:        n,
						PCIeOffset: po,
						RAMOffset:  ro,
						Pause:      pause,
					})
				}
			}
		}
	}

	return m
}

// Stride keeps every n-th case, starting from the first.
func (m Matrix) Stride(n int) Matrix {
	if n <= 1 {
		return m
	}

	s := make(Matrix, 0, (len(m)+n-1)/n)
	for i := 0; i < len(m); i += n {
		s = append(s, m[i])
	}

	return s
}

// Filter keeps the cases f accepts.
func (m Matrix) Filter(f func(Case) bool) Matrix {
	var s Matrix

	for _, c := range m {
		if f(c) {
			s = append(s, c)
		}
	}

	return s
}

// Partition deals the cases round robin into n parts.
func (m Matrix) Partition(n int) []Matrix {
	parts := make([]Matrix, n)
	for i, c := range m {
		parts[i%n] = append(parts[i%n], c)
	}

	return parts
}
