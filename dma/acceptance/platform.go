package acceptance

import (
	"fmt"

	"github.com/sarchlab/pciedma/dma/pciewrite"
	"github.com/sarchlab/pciedma/mem/segmentram"
	"github.com/sarchlab/pciedma/pcie/rootcomplex"
	"github.com/sarchlab/pciedma/sim"
)

// Platform is a DMA engine wired to a segmented RAM, a root complex and a
// descriptor agent.
type Platform struct {
	Config     Config
	Engine     *sim.SerialEngine
	Freq       sim.Freq
	RAM        *segmentram.Comp
	RC         *rootcomplex.Comp
	DMA        *pciewrite.Comp
	Agent      *DescAgent
	RQToggler  *PauseToggler
	RAMToggler *PauseToggler
	Conn       *sim.DirectConnection
	Scoreboard *Scoreboard
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Case   Case
	Tag    uint64
	Cycles uint64
	TLPs   uint64
	Err    error
}

// Passed tells if the case produced the expected host memory and status.
func (r CaseResult) Passed() bool {
	return r.Err == nil
}

// PlatformBuilder builds platforms.
type PlatformBuilder struct {
	config  Config
	tlpLog  bool
	enabled bool
}

// MakePlatformBuilder returns a builder for a 128-bit platform.
func MakePlatformBuilder() PlatformBuilder {
	return PlatformBuilder{
		config:  DefaultConfig(128),
		enabled: true,
	}
}

// WithConfig sets the configuration.
func (b PlatformBuilder) WithConfig(c Config) PlatformBuilder {
	b.config = c
	return b
}

// WithTLPLog makes the root complex record every request.
func (b PlatformBuilder) WithTLPLog() PlatformBuilder {
	b.tlpLog = true
	return b
}

// WithEnable sets if the engine admits descriptors from the start.
func (b PlatformBuilder) WithEnable(enable bool) PlatformBuilder {
	b.enabled = enable
	return b
}

// Build creates a platform. Component names are prefixed with name.
func (b PlatformBuilder) Build(name string) *Platform {
	c := b.config
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("acceptance.PlatformBuilder: %v", err))
	}

	p := &Platform{
		Config: c,
		Engine: sim.NewSerialEngine(),
		Freq:   sim.Freq(c.FreqMHz) * sim.MHz,
	}

	p.RAM = segmentram.MakeBuilder().
		WithEngine(p.Engine).
		WithFreq(p.Freq).
		WithSegCount(c.SegCount).
		WithSegDataWidth(c.SegDataWidth).
		WithSegAddrWidth(c.SegAddrWidth).
		WithSelCount(1 << c.RAMSelWidth).
		WithLatency(c.SegLatency).
		WithLatencySkew(c.SegLatencySkew).
		Build(name + ".RAM")

	rcBuilder := rootcomplex.MakeBuilder().
		WithEngine(p.Engine).
		WithFreq(p.Freq).
		WithBusWidth(c.BusWidth()).
		WithMaxPayloadSizeCode(c.MaxPayloadSizeCode).
		WithHostMemCapacity(c.HostBase + c.HostSize)
	if c.RequesterIDEnable {
		rcBuilder = rcBuilder.WithRequesterIDCheck(c.RequesterID)
	}

	if b.tlpLog {
		rcBuilder = rcBuilder.WithTLPLog()
	}

	p.RC = rcBuilder.Build(name + ".RC")

	dmaBuilder := pciewrite.MakeBuilder().
		WithEngine(p.Engine).
		WithFreq(p.Freq).
		WithBusWidth(c.BusWidth()).
		WithGeometry(p.RAM.Geometry()).
		WithPCIeAddrWidth(c.PCIeAddrWidth).
		WithLenWidth(c.LenWidth).
		WithTagWidth(c.TagWidth).
		WithMaxPayloadSizeCode(c.MaxPayloadSizeCode).
		WithFetchWindow(c.FetchWindow).
		WithStatusQueueSize(c.StatusQueueSize).
		WithEnable(b.enabled).
		WithRQDst(p.RC.RQPort().AsRemote())
	if c.RequesterIDEnable {
		dmaBuilder = dmaBuilder.WithRequesterID(c.RequesterID)
	}

	segDsts := make([]sim.RemotePort, c.SegCount)
	for i := range segDsts {
		segDsts[i] = p.RAM.SegPort(i).AsRemote()
	}

	p.Agent = NewDescAgent(name+".Agent", p.Engine, p.Freq,
		sim.RemotePort(name+".DMA.Desc"))

	p.DMA = dmaBuilder.
		WithSegDsts(segDsts...).
		WithStatusDst(p.Agent.StatusIn.AsRemote()).
		Build(name + ".DMA")

	p.RQToggler = NewPauseToggler(name+".RQToggler", p.Engine, p.Freq, p.RC)
	p.RAMToggler = NewPauseToggler(name+".RAMToggler", p.Engine, p.Freq, p.RAM)

	p.Conn = sim.NewDirectConnection(name+".Conn", p.Engine, p.Freq)
	p.Conn.PlugIn(p.Agent.DescOut)
	p.Conn.PlugIn(p.Agent.StatusIn)
	p.Conn.PlugIn(p.DMA.DescPort())
	p.Conn.PlugIn(p.DMA.StatusPort())
	p.Conn.PlugIn(p.DMA.RQPort())
	p.Conn.PlugIn(p.RC.RQPort())

	for i := 0; i < c.SegCount; i++ {
		p.Conn.PlugIn(p.DMA.SegPort(i))
		p.Conn.PlugIn(p.RAM.SegPort(i))
	}

	p.Scoreboard = NewScoreboard(p.RAM, p.RC, c.HostBase)

	return p
}

// Components returns every component of the platform.
func (p *Platform) Components() []sim.Component {
	return []sim.Component{
		p.Agent, p.DMA, p.RAM, p.RC, p.RQToggler, p.RAMToggler,
	}
}

// CurrentCycle returns the number of cycles simulated so far.
func (p *Platform) CurrentCycle() uint64 {
	return p.Freq.Cycle(p.Engine.CurrentTime())
}

// Run runs the simulation until nothing is left to do.
func (p *Platform) Run() error {
	return p.Engine.Run()
}

// Reset resets every component. Memory contents are kept.
func (p *Platform) Reset() {
	p.RQToggler.Stop()
	p.RAMToggler.Stop()
	p.Agent.Reset()
	p.DMA.Reset()
	p.RAM.Reset()
	p.RC.Reset()
}

// ResetAt schedules a reset at the given cycle.
func (p *Platform) ResetAt(cycle uint64) {
	t := sim.VTimeInSec(float64(cycle) / float64(p.Freq))
	p.Engine.Schedule(sim.NewFuncEvent(t, p.Reset))
}

// Transfer submits a descriptor with the pause pattern of c and runs until the
// agent is idle or the cycle budget is spent.
func (p *Platform) Transfer(c Case, desc pciewrite.Descriptor) error {
	deadline := p.CurrentCycle() + p.Config.MaxCycles
	done := func() bool {
		return p.Agent.Idle() || p.CurrentCycle() >= deadline
	}

	if c.Pause {
		p.RQToggler.Start(done)
	}

	if c.PauseRAM {
		p.RAMToggler.Start(done)
	}

	p.Agent.Submit(desc)

	if err := p.Run(); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if err := p.Agent.Err(); err != nil {
		return err
	}

	if !p.Agent.Idle() {
		return fmt.Errorf("descriptor with tag %d has no status after %d "+
			"cycles", desc.Tag, p.Config.MaxCycles)
	}

	return nil
}

// RunCase prepares the memories, transfers the case and checks host memory.
func (p *Platform) RunCase(c Case, tag uint64) CaseResult {
	res := CaseResult{Case: c, Tag: tag}
	startCycle := p.CurrentCycle()
	startTLPs := p.RC.Stats().TLPs

	desc, err := p.Scoreboard.Prepare(c, tag)
	if err == nil {
		err = p.Transfer(c, desc)
	}

	if err == nil {
		err = p.Scoreboard.Check(c)
	}

	res.Err = err
	res.Cycles = p.CurrentCycle() - startCycle
	res.TLPs = p.RC.Stats().TLPs - startTLPs

	return res
}
