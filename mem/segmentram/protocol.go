package segmentram

import "github.com/sarchlab/pciedma/sim"

var cmdByteOverhead = 4
var rspByteOverhead = 4

// A ReadCmd asks a segment for one row of one selectable region.
type ReadCmd struct {
	sim.MsgMeta

	Sel uint64
	Row uint64
}

// Meta returns the message meta.
func (c *ReadCmd) Meta() *sim.MsgMeta {
	return &c.MsgMeta
}

// Clone returns a copy of the command with a new ID.
func (c *ReadCmd) Clone() sim.Msg {
	cloned := *c
	cloned.ID = sim.GetIDGenerator().Generate()

	return &cloned
}

// ReadCmdBuilder can build read commands.
type ReadCmdBuilder struct {
	src, dst sim.RemotePort
	sel, row uint64
}

// WithSrc sets the source of the command to build.
func (b ReadCmdBuilder) WithSrc(src sim.RemotePort) ReadCmdBuilder {
	b.src = src
	return b
}

// WithDst sets the destination of the command to build.
func (b ReadCmdBuilder) WithDst(dst sim.RemotePort) ReadCmdBuilder {
	b.dst = dst
	return b
}

// WithSel sets the selected region.
func (b ReadCmdBuilder) WithSel(sel uint64) ReadCmdBuilder {
	b.sel = sel
	return b
}

// WithRow sets the row to read.
func (b ReadCmdBuilder) WithRow(row uint64) ReadCmdBuilder {
	b.row = row
	return b
}

// Build creates a new ReadCmd.
func (b ReadCmdBuilder) Build() *ReadCmd {
	c := &ReadCmd{Sel: b.sel, Row: b.row}
	c.ID = sim.GetIDGenerator().Generate()
	c.Src = b.src
	c.Dst = b.dst
	c.TrafficBytes = cmdByteOverhead

	return c
}

// A ReadRsp carries the data of one row back to the requester.
type ReadRsp struct {
	sim.MsgMeta

	Data      []byte
	RespondTo string
}

// Meta returns the message meta.
func (r *ReadRsp) Meta() *sim.MsgMeta {
	return &r.MsgMeta
}

// Clone returns a copy of the response with a new ID.
func (r *ReadRsp) Clone() sim.Msg {
	cloned := *r
	cloned.ID = sim.GetIDGenerator().Generate()
	cloned.Data = append([]byte(nil), r.Data...)

	return &cloned
}

// GetRspTo returns the ID of the command this response answers.
func (r *ReadRsp) GetRspTo() string {
	return r.RespondTo
}

// ReadRspBuilder can build read responses.
type ReadRspBuilder struct {
	src, dst sim.RemotePort
	rspTo    string
	data     []byte
}

// WithSrc sets the source of the response to build.
func (b ReadRspBuilder) WithSrc(src sim.RemotePort) ReadRspBuilder {
	b.src = src
	return b
}

// WithDst sets the destination of the response to build.
func (b ReadRspBuilder) WithDst(dst sim.RemotePort) ReadRspBuilder {
	b.dst = dst
	return b
}

// WithRspTo sets the ID of the command being answered.
func (b ReadRspBuilder) WithRspTo(id string) ReadRspBuilder {
	b.rspTo = id
	return b
}

// WithData sets the row data.
func (b ReadRspBuilder) WithData(data []byte) ReadRspBuilder {
	b.data = data
	return b
}

// Build creates a new ReadRsp.
func (b ReadRspBuilder) Build() *ReadRsp {
	r := &ReadRsp{Data: b.data, RespondTo: b.rspTo}
	r.ID = sim.GetIDGenerator().Generate()
	r.Src = b.src
	r.Dst = b.dst
	r.TrafficBytes = len(b.data) + rspByteOverhead

	return r
}
