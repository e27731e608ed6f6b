package pciewrite

import (
	"fmt"

	"github.com/sarchlab/pciedma/mem/segmentram"
	"github.com/sarchlab/pciedma/pcie"
	"github.com/sarchlab/pciedma/sim"
)

// Builder constructs DMA write engines.
type Builder struct {
	engine             sim.Engine
	freq               sim.Freq
	busWidth           int
	geometry           segmentram.Geometry
	pcieAddrWidth      int
	lenWidth           int
	tagWidth           int
	maxPayloadSizeCode int
	requesterID        uint16
	fetchWindow        int
	statusQueueSize    int
	descBufferSize     int
	rqBufferSize       int
	segBufferSize      int
	disabled           bool

	rqDst     sim.RemotePort
	statusDst sim.RemotePort
	segDsts   []sim.RemotePort
}

// MakeBuilder returns a builder for a 128-bit engine in front of the default
// segmented RAM.
func MakeBuilder() Builder {
	return Builder{
		freq:            250 * sim.MHz,
		busWidth:        16,
		geometry:        segmentram.MakeBuilder().Geometry(),
		pcieAddrWidth:   64,
		lenWidth:        16,
		tagWidth:        8,
		statusQueueSize: 4,
		descBufferSize:  1,
		rqBufferSize:    2,
		segBufferSize:   4,
	}
}

// WithEngine sets the simulation engine.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithBusWidth sets the number of bytes per beat.
func (b Builder) WithBusWidth(n int) Builder {
	b.busWidth = n
	return b
}

// WithGeometry sets the layout of the local RAM.
func (b Builder) WithGeometry(g segmentram.Geometry) Builder {
	b.geometry = g
	return b
}

// WithPCIeAddrWidth sets the number of bits of a remote address.
func (b Builder) WithPCIeAddrWidth(n int) Builder {
	b.pcieAddrWidth = n
	return b
}

// WithLenWidth sets the number of bits of a descriptor length.
func (b Builder) WithLenWidth(n int) Builder {
	b.lenWidth = n
	return b
}

// WithTagWidth sets the number of bits of a descriptor tag.
func (b Builder) WithTagWidth(n int) Builder {
	b.tagWidth = n
	return b
}

// WithMaxPayloadSizeCode sets the Max_Payload_Size code of the link.
func (b Builder) WithMaxPayloadSizeCode(code int) Builder {
	b.maxPayloadSizeCode = code
	return b
}

// WithRequesterID sets the ID that every request carries.
func (b Builder) WithRequesterID(id uint16) Builder {
	b.requesterID = id
	return b
}

// WithFetchWindow sets the number of local words that can be in flight or
// buffered at the same time.
func (b Builder) WithFetchWindow(n int) Builder {
	b.fetchWindow = n
	return b
}

// WithStatusQueueSize sets the number of statuses waiting for the Status
// port.
func (b Builder) WithStatusQueueSize(n int) Builder {
	b.statusQueueSize = n
	return b
}

// WithDescBufferSize sets the number of descriptors the Desc port buffers in
// front of the admission slot.
func (b Builder) WithDescBufferSize(n int) Builder {
	b.descBufferSize = n
	return b
}

// WithRQBufferSize sets the number of beats the RQ port buffers.
func (b Builder) WithRQBufferSize(n int) Builder {
	b.rqBufferSize = n
	return b
}

// WithSegBufferSize sets the buffer size of each segment port.
func (b Builder) WithSegBufferSize(n int) Builder {
	b.segBufferSize = n
	return b
}

// WithEnable sets if the engine admits descriptors after it is built.
func (b Builder) WithEnable(enable bool) Builder {
	b.disabled = !enable
	return b
}

// WithRQDst sets the port that receives the beats.
func (b Builder) WithRQDst(dst sim.RemotePort) Builder {
	b.rqDst = dst
	return b
}

// WithStatusDst sets the port that receives the statuses.
func (b Builder) WithStatusDst(dst sim.RemotePort) Builder {
	b.statusDst = dst
	return b
}

// WithSegDsts sets the RAM ports that serve each segment.
func (b Builder) WithSegDsts(dsts ...sim.RemotePort) Builder {
	b.segDsts = dsts
	return b
}

// DefaultFetchWindow returns the fetch window used when none is set: enough
// words for two beats.
func (b Builder) DefaultFetchWindow() int {
	return 2 * b.minFetchWindow()
}

func (b Builder) minFetchWindow() int {
	perBeat := (b.busWidth + b.geometry.SegDataWidth - 1) /
		b.geometry.SegDataWidth

	return perBeat + 1
}

func (b Builder) mustBeValid() {
	if b.engine == nil {
		panic("pciewrite.Builder: engine is nil; call WithEngine")
	}

	if b.busWidth < pcie.DWBytes || b.busWidth > pcie.MaxBusWidth ||
		b.busWidth&(b.busWidth-1) != 0 {
		panic("pciewrite.Builder: bus width must be a power of two " +
			"between 4 and 64 bytes")
	}

	b.geometry.MustBeValid()

	if b.pcieAddrWidth <= 0 || b.pcieAddrWidth > 64 {
		panic("pciewrite.Builder: PCIe address width must be in [1, 64]")
	}

	if b.lenWidth <= 0 || b.lenWidth > 32 {
		panic("pciewrite.Builder: length width must be in [1, 32]")
	}

	if b.tagWidth <= 0 || b.tagWidth > 8 {
		panic("pciewrite.Builder: tag width must be in [1, 8]")
	}

	if b.fetchWindow != 0 && b.fetchWindow < b.minFetchWindow() {
		panic(fmt.Sprintf("pciewrite.Builder: fetch window must hold at "+
			"least %d words", b.minFetchWindow()))
	}

	if b.statusQueueSize <= 0 || b.descBufferSize <= 0 ||
		b.rqBufferSize <= 0 || b.segBufferSize <= 0 {
		panic("pciewrite.Builder: queue sizes must be > 0")
	}

	if b.segDsts != nil && len(b.segDsts) != b.geometry.SegCount {
		panic(fmt.Sprintf("pciewrite.Builder: %d segment destinations "+
			"for %d segments", len(b.segDsts), b.geometry.SegCount))
	}
}

// Build creates a DMA write engine.
func (b Builder) Build(name string) *Comp {
	b.mustBeValid()

	c := &Comp{
		busWidth:       b.busWidth,
		geometry:       b.geometry,
		pcieAddrWidth:  b.pcieAddrWidth,
		lenWidth:       b.lenWidth,
		tagWidth:       b.tagWidth,
		maxPayloadSize: pcie.MaxPayloadSize(b.maxPayloadSizeCode),
		requesterID:    b.requesterID,
		fetchWindow:    b.fetchWindow,
		enabled:        !b.disabled,
		rqDst:          b.rqDst,
		statusDst:      b.statusDst,
		words:          make(map[uint64][]byte),
	}

	if c.fetchWindow == 0 {
		c.fetchWindow = b.DefaultFetchWindow()
	}

	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.descPort = sim.NewPort(c, b.descBufferSize, 1, name+".Desc")
	c.AddPort("Desc", c.descPort)

	c.statusPort = sim.NewPort(c, 1, 1, name+".Status")
	c.AddPort("Status", c.statusPort)

	c.rqPort = sim.NewPort(c, 1, b.rqBufferSize, name+".RQ")
	c.AddPort("RQ", c.rqPort)

	c.segPorts = make([]sim.Port, b.geometry.SegCount)
	c.segDsts = make([]sim.RemotePort, b.geometry.SegCount)
	c.readCtxs = make([][]readCtx, b.geometry.SegCount)

	for i := range c.segPorts {
		c.segPorts[i] = sim.NewPort(c, b.segBufferSize, b.segBufferSize,
			fmt.Sprintf("%s.Seg[%d]", name, i))
		c.AddPort(fmt.Sprintf("Seg[%d]", i), c.segPorts[i])

		if b.segDsts != nil {
			c.segDsts[i] = b.segDsts[i]
		}
	}

	c.statusQueue = sim.NewBuffer(name+".StatusQueue", b.statusQueueSize)

	c.AddMiddleware(&statusMiddleware{Comp: c})
	c.AddMiddleware(&emitMiddleware{Comp: c})
	c.AddMiddleware(&fetchMiddleware{Comp: c})
	c.AddMiddleware(&admitMiddleware{Comp: c})

	return c
}
