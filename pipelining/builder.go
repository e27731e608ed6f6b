package pipelining

import (
	"log"

	"github.com/sarchlab/pciedma/sim"
)

// A Builder can build pipelines.
type Builder struct {
	numStage int
	out      sim.Buffer
}

// MakeBuilder creates a builder for a 5 stage pipeline.
func MakeBuilder() Builder {
	return Builder{numStage: 5}
}

// WithNumStage sets the number of stages, which is the latency in cycles.
// Zero stages means items go straight to the post-pipeline buffer.
func (b Builder) WithNumStage(n int) Builder {
	b.numStage = n
	return b
}

// WithPostPipelineBuffer sets the buffer that items are pushed to after the
// last stage.
func (b Builder) WithPostPipelineBuffer(buf sim.Buffer) Builder {
	b.out = buf
	return b
}

// Build builds a pipeline.
func (b Builder) Build(name string) Pipeline {
	sim.NameMustBeValid(name)

	if b.out == nil {
		log.Panicf("pipelining: %s has no post-pipeline buffer", name)
	}

	if b.numStage < 0 {
		log.Panicf("pipelining: %s has %d stages", name, b.numStage)
	}

	return &pipelineImpl{
		name:   name,
		stages: make([]PipelineItem, b.numStage),
		out:    b.out,
	}
}
