package segmentram

import (
	"fmt"

	"github.com/sarchlab/pciedma/mem"
	"github.com/sarchlab/pciedma/pipelining"
	"github.com/sarchlab/pciedma/sim"
)

// Builder constructs segmented RAMs.
type Builder struct {
	engine sim.Engine
	freq   sim.Freq

	segCount       int
	segDataWidth   int
	segAddrWidth   int
	selCount       int
	latency        int
	latencySkew    int
	queueSize      int
	portBufferSize int
}

// MakeBuilder creates a builder with the default geometry of a 128-bit
// datapath: two segments of 16 bytes, 4096 rows and four regions.
func MakeBuilder() Builder {
	return Builder{
		freq:           250 * sim.MHz,
		segCount:       2,
		segDataWidth:   16,
		segAddrWidth:   12,
		selCount:       4,
		latency:        2,
		latencySkew:    1,
		queueSize:      4,
		portBufferSize: 2,
	}
}

// WithEngine sets the simulation engine.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the component frequency.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithSegCount sets the number of segments.
func (b Builder) WithSegCount(n int) Builder {
	b.segCount = n
	return b
}

// WithSegDataWidth sets the number of bytes a segment reads per command.
func (b Builder) WithSegDataWidth(n int) Builder {
	b.segDataWidth = n
	return b
}

// WithSegAddrWidth sets the number of row address bits of each segment.
func (b Builder) WithSegAddrWidth(n int) Builder {
	b.segAddrWidth = n
	return b
}

// WithSelCount sets the number of selectable regions.
func (b Builder) WithSelCount(n int) Builder {
	b.selCount = n
	return b
}

// WithLatency sets the number of cycles a command spends in segment 0.
func (b Builder) WithLatency(n int) Builder {
	b.latency = n
	return b
}

// WithLatencySkew sets the extra latency added per segment index.
func (b Builder) WithLatencySkew(n int) Builder {
	b.latencySkew = n
	return b
}

// WithQueueSize sets the number of commands each segment can queue.
func (b Builder) WithQueueSize(n int) Builder {
	b.queueSize = n
	return b
}

// WithPortBufferSize sets the buffer size of the segment ports.
func (b Builder) WithPortBufferSize(n int) Builder {
	b.portBufferSize = n
	return b
}

// Geometry returns the address layout the builder is configured with.
func (b Builder) Geometry() Geometry {
	return Geometry{
		SegCount:     b.segCount,
		SegDataWidth: b.segDataWidth,
		SegAddrWidth: b.segAddrWidth,
		SelCount:     b.selCount,
	}
}

// Build creates a segmented RAM.
func (b Builder) Build(name string) *Comp {
	if b.engine == nil {
		panic("segmentram.Builder: engine is nil; call WithEngine")
	}

	if b.latency < 0 || b.latencySkew < 0 {
		panic("segmentram.Builder: latency must not be negative")
	}

	if b.queueSize <= 0 || b.portBufferSize <= 0 {
		panic("segmentram.Builder: queue sizes must be > 0")
	}

	geometry := b.Geometry()
	geometry.MustBeValid()

	c := &Comp{geometry: geometry, inflight: make(map[string]struct{})}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	regionBytes := geometry.Rows() * uint64(geometry.SegDataWidth)
	c.segments = make([]segment, geometry.SegCount)

	for i := range c.segments {
		segName := fmt.Sprintf("%s.Seg[%d]", name, i)

		port := sim.NewPort(c, b.portBufferSize, b.portBufferSize, segName)
		c.AddPort(fmt.Sprintf("Seg[%d]", i), port)

		postPipelineBuf := sim.NewBuffer(segName+".PostPipelineBuf", 1)
		pipeline := pipelining.MakeBuilder().
			WithNumStage(b.latency + i*b.latencySkew).
			WithPostPipelineBuffer(postPipelineBuf).
			Build(segName + ".Pipeline")

		c.segments[i] = segment{
			port:            port,
			pending:         sim.NewBuffer(segName+".Pending", b.queueSize),
			pipeline:        pipeline,
			postPipelineBuf: postPipelineBuf,
			storage:         mem.NewStorage(uint64(geometry.SelCount) * regionBytes),
		}
	}

	c.AddMiddleware(&middleware{Comp: c})

	return c
}
