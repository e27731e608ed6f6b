package rootcomplex

import (
	"github.com/sarchlab/pciedma/mem"
	"github.com/sarchlab/pciedma/pcie"
	"github.com/sarchlab/pciedma/sim"
)

// Builder constructs root complexes.
type Builder struct {
	engine             sim.Engine
	freq               sim.Freq
	busWidth           int
	maxPayloadSizeCode int
	requesterID        uint16
	checkRequesterID   bool
	capacity           uint64
	rqBufferSize       int
	keepLog            bool
}

// MakeBuilder returns a builder for a 128-bit link with a 128 byte max
// payload and 4 GB of host memory.
func MakeBuilder() Builder {
	return Builder{
		freq:         250 * sim.MHz,
		busWidth:     16,
		capacity:     4 * mem.GB,
		rqBufferSize: 1,
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

// WithMaxPayloadSizeCode sets the Max_Payload_Size code the link is
// configured with.
func (b Builder) WithMaxPayloadSizeCode(code int) Builder {
	b.maxPayloadSizeCode = code
	return b
}

// WithRequesterIDCheck makes the root complex reject requests that do not
// come from id.
func (b Builder) WithRequesterIDCheck(id uint16) Builder {
	b.requesterID = id
	b.checkRequesterID = true

	return b
}

// WithHostMemCapacity sets the size of host memory.
func (b Builder) WithHostMemCapacity(capacity uint64) Builder {
	b.capacity = capacity
	return b
}

// WithRQBufferSize sets the number of beats the RQ port can buffer.
func (b Builder) WithRQBufferSize(n int) Builder {
	b.rqBufferSize = n
	return b
}

// WithTLPLog makes the root complex keep a record of every request.
func (b Builder) WithTLPLog() Builder {
	b.keepLog = true
	return b
}

// Build creates a root complex.
func (b Builder) Build(name string) *Comp {
	if b.engine == nil {
		panic("rootcomplex.Builder: engine is nil; call WithEngine")
	}

	if b.busWidth <= 0 || b.busWidth > pcie.MaxBusWidth ||
		b.busWidth&(b.busWidth-1) != 0 {
		panic("rootcomplex.Builder: bus width must be a power of two " +
			"no wider than 64 bytes")
	}

	if b.rqBufferSize <= 0 {
		panic("rootcomplex.Builder: RQ buffer size must be > 0")
	}

	c := &Comp{
		storage:          mem.NewStorage(b.capacity),
		busWidth:         b.busWidth,
		maxPayloadSize:   pcie.MaxPayloadSize(b.maxPayloadSizeCode),
		requesterID:      b.requesterID,
		checkRequesterID: b.checkRequesterID,
		keepLog:          b.keepLog,
	}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.rqPort = sim.NewPort(c, b.rqBufferSize, 1, name+".RQ")
	c.AddPort("RQ", c.rqPort)

	c.AddMiddleware(&middleware{Comp: c})

	return c
}
