// Package pcie defines the posted memory write transactions that a DMA
// engine sends toward a root complex.
package pcie

import (
	"encoding/binary"
	"log"
	"math"
)

const (
	// DWBytes is the size of a PCIe double word.
	DWBytes = 4

	// PageSize is the boundary a single request may never cross.
	PageSize = 4096

	fmt3DWWithData = 0b010
	fmt4DWWithData = 0b011
)

// MaxPayloadSize decodes the Max_Payload_Size field of the device control
// register. Codes 0 to 5 stand for 128 to 4096 bytes.
func MaxPayloadSize(code int) uint64 {
	if code < 0 || code > 5 {
		log.Panicf("pcie: max payload size code %d is not in [0, 5]", code)
	}

	return 128 << code
}

// MWrHeader holds the fields of a memory write request header that the
// receiver needs to place the payload.
type MWrHeader struct {
	Address     uint64
	ByteCount   uint64
	DWCount     int
	FirstBE     uint8
	LastBE      uint8
	RequesterID uint16
	Tag         uint8
}

// NewMWrHeader computes the double word count and the byte enables of a write
// of byteCount bytes starting at addr. A single double word request has
// LastBE zero.
func NewMWrHeader(addr, byteCount uint64) MWrHeader {
	if byteCount == 0 {
		log.Panic("pcie: memory write must carry at least one byte")
	}

	if byteCount > PageSize {
		log.Panicf("pcie: memory write of %d bytes exceeds %d", byteCount,
			PageSize)
	}

	end := addr + byteCount - 1
	firstDW := addr / DWBytes
	lastDW := end / DWBytes

	h := MWrHeader{
		Address:   addr,
		ByteCount: byteCount,
		DWCount:   int(lastDW - firstDW + 1),
	}

	firstBE := uint8(0xf<<(addr%DWBytes)) & 0xf
	lastBE := uint8(0xf >> (DWBytes - 1 - end%DWBytes))

	if h.DWCount == 1 {
		h.FirstBE = firstBE & lastBE
		h.LastBE = 0
	} else {
		h.FirstBE = firstBE
		h.LastBE = lastBE
	}

	return h
}

// Is64 tells if the request needs the four double word header format.
func (h MWrHeader) Is64() bool {
	return h.Address > math.MaxUint32
}

// EndAddress returns the address right after the last written byte.
func (h MWrHeader) EndAddress() uint64 {
	return h.Address + h.ByteCount
}

// Encode returns the header in wire format.
func (h MWrHeader) Encode() []byte {
	length := h.DWCount
	if length == 1024 {
		length = 0
	}

	format := byte(fmt3DWWithData)
	if h.Is64() {
		format = fmt4DWWithData
	}

	buf := make([]byte, 0, 4*DWBytes)
	buf = append(buf,
		format<<5,
		0,
		byte(length>>8)&0x3,
		byte(length),
	)
	buf = binary.BigEndian.AppendUint16(buf, h.RequesterID)
	buf = append(buf, h.Tag, h.LastBE<<4|h.FirstBE)

	if h.Is64() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(h.Address>>32))
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(h.Address)&^0x3)

	return buf
}

// CrossesBoundary tells if [addr, addr+n) spans more than one block of
// boundary bytes. boundary must be a power of two.
func CrossesBoundary(addr, n, boundary uint64) bool {
	if n == 0 {
		return false
	}

	return addr/boundary != (addr+n-1)/boundary
}
