package pcie

import "github.com/sarchlab/pciedma/sim"

// A Beat is one bus cycle worth of a memory write request. The first beat of
// a request carries the header. Byte lane i of the bus carries the byte whose
// address is i modulo the bus width.
type Beat struct {
	sim.MsgMeta

	Data   []byte
	Keep   ByteMask
	First  bool
	Last   bool
	Header *MWrHeader
	TxnID  string
}

// Meta returns the message meta.
func (b *Beat) Meta() *sim.MsgMeta {
	return &b.MsgMeta
}

// Clone returns a copy of the beat with a new ID.
func (b *Beat) Clone() sim.Msg {
	cloned := *b
	cloned.ID = sim.GetIDGenerator().Generate()
	cloned.Data = append([]byte(nil), b.Data...)

	if b.Header != nil {
		h := *b.Header
		cloned.Header = &h
	}

	return &cloned
}

// BeatBuilder can build beats.
type BeatBuilder struct {
	src, dst    sim.RemotePort
	data        []byte
	keep        ByteMask
	first, last bool
	header      *MWrHeader
	txnID       string
}

// WithSrc sets the source of the beat.
func (b BeatBuilder) WithSrc(src sim.RemotePort) BeatBuilder {
	b.src = src
	return b
}

// WithDst sets the destination of the beat.
func (b BeatBuilder) WithDst(dst sim.RemotePort) BeatBuilder {
	b.dst = dst
	return b
}

// WithData sets the bus data and the valid lanes.
func (b BeatBuilder) WithData(data []byte, keep ByteMask) BeatBuilder {
	b.data = data
	b.keep = keep

	return b
}

// WithHeader marks the beat as the first of a request.
func (b BeatBuilder) WithHeader(h MWrHeader) BeatBuilder {
	b.header = &h
	b.first = true

	return b
}

// AsLast marks the beat as the last of a request.
func (b BeatBuilder) AsLast() BeatBuilder {
	b.last = true
	return b
}

// WithTxnID sets the ID of the request the beat belongs to.
func (b BeatBuilder) WithTxnID(id string) BeatBuilder {
	b.txnID = id
	return b
}

// Build creates the beat.
func (b BeatBuilder) Build() *Beat {
	beat := &Beat{
		Data:   b.data,
		Keep:   b.keep,
		First:  b.first,
		Last:   b.last,
		Header: b.header,
		TxnID:  b.txnID,
	}
	beat.ID = sim.GetIDGenerator().Generate()
	beat.Src = b.src
	beat.Dst = b.dst
	beat.TrafficBytes = b.keep.Count()

	if b.header != nil {
		beat.TrafficBytes += len(b.header.Encode())
	}

	return beat
}
