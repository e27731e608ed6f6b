package acceptance

import (
	"bytes"
	"fmt"

	"github.com/sarchlab/pciedma/dma/pciewrite"
)

const (
	ramSentinel  = 0x55
	hostSentinel = 0xaa
	sentinelPad  = 256
	sentinelMask = ^uint64(0x7f)
)

// MismatchError reports a value that differs from what the transfer should
// have produced.
type MismatchError struct {
	What string
	Addr uint64
	Want uint64
	Got  uint64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s mismatch at 0x%x: want 0x%x, got 0x%x",
		e.What, e.Addr, e.Want, e.Got)
}

// RAMBackdoor gives direct access to the local RAM.
type RAMBackdoor interface {
	WriteMem(sel, addr uint64, data []byte) error
	ReadMem(sel, addr, n uint64) ([]byte, error)
}

// HostBackdoor gives direct access to host memory.
type HostBackdoor interface {
	WriteMem(addr uint64, data []byte) error
	ReadMem(addr, n uint64) ([]byte, error)
	FillMem(addr, n uint64, v byte) error
}

// Scoreboard prepares the memories for a transfer and checks the result.
//
// Around the source data the RAM holds 0x55 and around the destination the
// host holds 0xaa, so a write that strays by one byte on either side is
// caught.
type Scoreboard struct {
	ram      RAMBackdoor
	host     HostBackdoor
	hostBase uint64
}

// NewScoreboard creates a scoreboard. Case offsets are relative to hostBase.
func NewScoreboard(ram RAMBackdoor, host HostBackdoor, hostBase uint64) *Scoreboard {
	return &Scoreboard{ram: ram, host: host, hostBase: hostBase}
}

// TestData returns the bytes a case transfers: byte i is i mod 256.
func TestData(n uint64) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}

	return data
}

// Prepare fills both memories and returns the descriptor of the case.
func (s *Scoreboard) Prepare(c Case, tag uint64) (pciewrite.Descriptor, error) {
	return s.PrepareData(c, TestData(c.Len), tag)
}

// PrepareData is Prepare with caller provided data.
func (s *Scoreboard) PrepareData(
	c Case,
	data []byte,
	tag uint64,
) (pciewrite.Descriptor, error) {
	n := uint64(len(data))
	ramAddr := c.RAMOffset
	hostAddr := s.hostBase + c.PCIeOffset

	fill := bytes.Repeat([]byte{ramSentinel}, int(n+sentinelPad))
	if err := s.ram.WriteMem(c.RAMSel, ramAddr&sentinelMask, fill); err != nil {
		return pciewrite.Descriptor{}, fmt.Errorf("fill RAM: %w", err)
	}

	if err := s.ram.WriteMem(c.RAMSel, ramAddr, data); err != nil {
		return pciewrite.Descriptor{}, fmt.Errorf("write RAM: %w", err)
	}

	if err := s.host.FillMem((hostAddr-1)&sentinelMask, n+sentinelPad,
		hostSentinel); err != nil {
		return pciewrite.Descriptor{}, fmt.Errorf("fill host: %w", err)
	}

	return pciewrite.Descriptor{
		PCIeAddr: hostAddr,
		RAMSel:   c.RAMSel,
		RAMAddr:  ramAddr,
		Len:      n,
		Tag:      tag,
	}, nil
}

// Check compares host memory with the data of the case, one sentinel byte
// included on each side.
func (s *Scoreboard) Check(c Case) error {
	return s.CheckData(c, TestData(c.Len))
}

// CheckData is Check with caller provided data.
func (s *Scoreboard) CheckData(c Case, data []byte) error {
	hostAddr := s.hostBase + c.PCIeOffset
	n := uint64(len(data))

	got, err := s.host.ReadMem(hostAddr-1, n+2)
	if err != nil {
		return fmt.Errorf("read host: %w", err)
	}

	want := make([]byte, 0, n+2)
	want = append(want, hostSentinel)
	want = append(want, data...)
	want = append(want, hostSentinel)

	for i := range want {
		if got[i] != want[i] {
			return &MismatchError{
				What: "host memory",
				Addr: hostAddr - 1 + uint64(i),
				Want: uint64(want[i]),
				Got:  uint64(got[i]),
			}
		}
	}

	return nil
}
