// Package pipelining provides a fixed latency pipeline. An item accepted in
// one cycle reaches the post-pipeline buffer after one cycle per stage, as
// long as nothing ahead of it is stalled.
package pipelining

import (
	"log"
	"reflect"

	"github.com/sarchlab/pciedma/sim"
	"github.com/sarchlab/pciedma/tracing"
)

// PipelineItem is an item that can pass through a pipeline.
type PipelineItem interface {
	TaskID() string
}

// Pipeline is a chain of single-item stages that ends in a buffer.
type Pipeline interface {
	tracing.NamedHookable

	// Tick moves items one stage forward.
	Tick() (madeProgress bool)

	// CanAccept checks if the first stage is free.
	CanAccept() bool

	// Accept puts an item into the first stage. It panics if the stage is
	// taken.
	Accept(item PipelineItem)

	// Clear drops every item in the stages.
	Clear()

	// NumItems returns the number of items in the stages.
	NumItems() int
}

type pipelineImpl struct {
	sim.HookableBase

	name   string
	stages []PipelineItem
	out    sim.Buffer
}

func (p *pipelineImpl) Name() string {
	return p.name
}

// Clear drops the staged items and ends their tasks. Items already in the
// post-pipeline buffer stay there.
func (p *pipelineImpl) Clear() {
	for i, item := range p.stages {
		if item != nil {
			tracing.EndTask(stageTaskID(item), p)
			p.stages[i] = nil
		}
	}
}

func (p *pipelineImpl) NumItems() int {
	n := 0

	for _, item := range p.stages {
		if item != nil {
			n++
		}
	}

	return n
}

// Tick walks the stages from the output end so that an item moves at most
// one stage per cycle.
func (p *pipelineImpl) Tick() (madeProgress bool) {
	last := len(p.stages) - 1

	for i := last; i >= 0; i-- {
		item := p.stages[i]
		if item == nil {
			continue
		}

		switch {
		case i == last:
			if !p.out.CanPush() {
				continue
			}

			tracing.EndTask(stageTaskID(item), p)
			p.out.Push(item)
		case p.stages[i+1] == nil:
			p.stages[i+1] = item
		default:
			continue
		}

		p.stages[i] = nil
		madeProgress = true
	}

	return madeProgress
}

func (p *pipelineImpl) CanAccept() bool {
	if len(p.stages) == 0 {
		return p.out.CanPush()
	}

	return p.stages[0] == nil
}

func (p *pipelineImpl) Accept(item PipelineItem) {
	if len(p.stages) == 0 {
		p.out.Push(item)
		return
	}

	if p.stages[0] != nil {
		log.Panicf("pipelining: %s is not free, check CanAccept first", p.name)
	}

	p.stages[0] = item

	tracing.StartTask(stageTaskID(item), item.TaskID(), p, "pipeline",
		reflect.TypeOf(item).String(), nil)
}

func stageTaskID(item PipelineItem) string {
	return item.TaskID() + "_pipeline"
}
