package pciewrite

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pciedma/mem"
	"github.com/sarchlab/pciedma/mem/segmentram"
	"github.com/sarchlab/pciedma/pcie/rootcomplex"
	"github.com/sarchlab/pciedma/sim"
	"github.com/sarchlab/pciedma/tracing"
)

type testAgent struct {
	*sim.ComponentBase

	descOut  sim.Port
	statusIn sim.Port
	statuses []*WriteDescStatus
}

func newTestAgent(name string) *testAgent {
	a := &testAgent{
		ComponentBase: sim.NewComponentBase(name),
	}

	a.descOut = sim.NewPort(a, 1, 16, name+".DescOut")
	a.statusIn = sim.NewPort(a, 16, 1, name+".StatusIn")
	a.AddPort("DescOut", a.descOut)
	a.AddPort("StatusIn", a.statusIn)

	return a
}

func (a *testAgent) NotifyRecv(port sim.Port) {
	for {
		msg := port.RetrieveIncoming()
		if msg == nil {
			break
		}

		a.statuses = append(a.statuses, msg.(*WriteDescStatus))
	}
}

func (a *testAgent) NotifyPortFree(sim.Port) {}

func (a *testAgent) Handle(sim.Event) error {
	return nil
}

func (a *testAgent) submit(dst sim.Port, desc Descriptor) {
	req := WriteDescReqBuilder{}.
		WithSrc(a.descOut.AsRemote()).
		WithDst(dst.AsRemote()).
		WithDescriptor(desc).
		Build()

	Expect(a.descOut.Send(req)).To(BeNil())
}

func (a *testAgent) tags() []uint64 {
	tags := make([]uint64, 0, len(a.statuses))
	for _, s := range a.statuses {
		tags = append(tags, s.Tag)
	}

	return tags
}

var _ = Describe("DMA write engine", func() {
	var (
		engine *sim.SerialEngine
		ram    *segmentram.Comp
		rc     *rootcomplex.Comp
		agent  *testAgent
		dma    *Comp
	)

	build := func(enable bool) {
		engine = sim.NewSerialEngine()

		ram = segmentram.MakeBuilder().
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithSegAddrWidth(8).
			Build("RAM")

		rc = rootcomplex.MakeBuilder().
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithBusWidth(16).
			WithHostMemCapacity(1 * mem.MB).
			WithRequesterIDCheck(0x0100).
			WithTLPLog().
			Build("RC")

		agent = newTestAgent("Agent")

		dma = MakeBuilder().
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithBusWidth(16).
			WithGeometry(ram.Geometry()).
			WithRequesterID(0x0100).
			WithEnable(enable).
			WithRQDst(rc.RQPort().AsRemote()).
			WithStatusDst(agent.statusIn.AsRemote()).
			WithSegDsts(ram.SegPort(0).AsRemote(), ram.SegPort(1).AsRemote()).
			Build("DMA")

		conn := sim.NewDirectConnection("Conn", engine, 1*sim.GHz)
		conn.PlugIn(agent.descOut)
		conn.PlugIn(agent.statusIn)
		conn.PlugIn(dma.DescPort())
		conn.PlugIn(dma.StatusPort())
		conn.PlugIn(dma.RQPort())
		conn.PlugIn(rc.RQPort())

		for i := 0; i < dma.NumSegPorts(); i++ {
			conn.PlugIn(dma.SegPort(i))
			conn.PlugIn(ram.SegPort(i))
		}
	}

	pattern := func(n int, seed byte) []byte {
		data := make([]byte, n)
		for i := range data {
			data[i] = seed + byte(i*7)
		}

		return data
	}

	BeforeEach(func() {
		build(true)
	})

	It("should copy a descriptor that crosses a page", func() {
		data := pattern(300, 3)
		Expect(ram.WriteMem(1, 0x105, data)).To(Succeed())

		agent.submit(dma.DescPort(), Descriptor{
			PCIeAddr: 0x1ffd,
			RAMSel:   1,
			RAMAddr:  0x105,
			Len:      300,
			Tag:      9,
		})

		Expect(engine.Run()).To(Succeed())

		host, err := rc.ReadMem(0x1ffd, 300)
		Expect(err).NotTo(HaveOccurred())
		Expect(host).To(Equal(data))
		Expect(agent.tags()).To(Equal([]uint64{9}))
		Expect(agent.statuses[0].Outcome).To(Equal(Completed))

		log := rc.TLPLog()
		Expect(log).To(HaveLen(4))
		Expect(log[0].ByteCount).To(Equal(uint64(3)))
		Expect(log[1].Address).To(Equal(uint64(0x2000)))
		Expect(log[3].ByteCount).To(Equal(uint64(41)))
		Expect(dma.State()).To(Equal(StateIdle))
	})

	It("should report statuses in submission order", func() {
		lens := []uint64{1, 131, 18, 1024}
		datas := make([][]byte, len(lens))

		for i, n := range lens {
			datas[i] = pattern(int(n), byte(i))
			ramAddr := uint64(0x8 + 0x500*i)
			Expect(ram.WriteMem(0, ramAddr, datas[i])).To(Succeed())

			agent.submit(dma.DescPort(), Descriptor{
				PCIeAddr: uint64(0x10000*(i+1) + 4092),
				RAMAddr:  ramAddr,
				Len:      n,
				Tag:      uint64(i + 1),
			})
		}

		Expect(engine.Run()).To(Succeed())

		Expect(agent.tags()).To(Equal([]uint64{1, 2, 3, 4}))

		for i, n := range lens {
			host, err := rc.ReadMem(uint64(0x10000*(i+1)+4092), n)
			Expect(err).NotTo(HaveOccurred())
			Expect(host).To(Equal(datas[i]))
		}

		Expect(dma.NumCompleted()).To(Equal(uint64(4)))
	})

	It("should report a zero length descriptor without writing", func() {
		agent.submit(dma.DescPort(), Descriptor{
			PCIeAddr: 0x1000,
			RAMAddr:  0x13,
			Len:      0,
			Tag:      5,
		})

		Expect(engine.Run()).To(Succeed())

		Expect(agent.tags()).To(Equal([]uint64{5}))
		Expect(rc.Stats().TLPs).To(BeZero())
	})

	It("should finish while both sides pause", func() {
		data := pattern(260, 1)
		Expect(ram.WriteMem(2, 0x1f, data)).To(Succeed())

		rc.SetPaused(true)
		ram.SetPaused(true)

		agent.submit(dma.DescPort(), Descriptor{
			PCIeAddr: 0x4001,
			RAMSel:   2,
			RAMAddr:  0x1f,
			Len:      260,
			Tag:      1,
		})

		engine.Schedule(sim.NewFuncEvent(20e-9, func() {
			ram.SetPaused(false)
		}))
		engine.Schedule(sim.NewFuncEvent(50e-9, func() {
			Expect(agent.statuses).To(BeEmpty())
			Expect(rc.Stats().Beats).To(BeZero())
			Expect(dma.State()).NotTo(Equal(StateIdle))
			rc.SetPaused(false)
		}))

		Expect(engine.Run()).To(Succeed())

		host, err := rc.ReadMem(0x4001, 260)
		Expect(err).NotTo(HaveOccurred())
		Expect(host).To(Equal(data))
		Expect(agent.tags()).To(Equal([]uint64{1}))
	})

	It("should not admit while disabled", func() {
		build(false)

		agent.submit(dma.DescPort(), Descriptor{
			PCIeAddr: 0x1000,
			RAMAddr:  0,
			Len:      16,
			Tag:      1,
		})

		Expect(engine.Run()).To(Succeed())
		Expect(agent.statuses).To(BeEmpty())
		Expect(dma.NumAdmitted()).To(BeZero())

		dma.SetEnabled(true)

		Expect(engine.Run()).To(Succeed())
		Expect(agent.tags()).To(Equal([]uint64{1}))
	})

	It("should run again after a reset in the middle of a transfer", func() {
		descs := tracing.NewAverageTimeTracer(engine, tracing.KindIs(TaskKind))
		tracing.CollectTrace(dma, descs)

		data := pattern(256, 2)
		Expect(ram.WriteMem(0, 0, data)).To(Succeed())

		agent.submit(dma.DescPort(), Descriptor{
			PCIeAddr: 0x3000,
			Len:      256,
			Tag:      1,
		})

		readsInFlight := func() bool {
			for _, ctxs := range dma.readCtxs {
				if len(ctxs) > 0 {
					return true
				}
			}

			return false
		}

		resetDone := false

		var pollAt func(t sim.VTimeInSec)
		pollAt = func(t sim.VTimeInSec) {
			engine.Schedule(sim.NewFuncEvent(t, func() {
				if !readsInFlight() {
					if t < 100e-9 {
						pollAt(t + 1e-9)
					}

					return
				}

				Expect(descs.TotalCount()).To(BeZero())

				dma.Reset()
				ram.Reset()
				rc.Reset()
				resetDone = true
			}))
		}
		pollAt(1.5e-9)

		Expect(engine.Run()).To(Succeed())
		Expect(resetDone).To(BeTrue())
		Expect(dma.State()).To(Equal(StateIdle))
		Expect(agent.statuses).To(BeEmpty())
		Expect(descs.TotalCount()).To(Equal(uint64(1)))

		agent.submit(dma.DescPort(), Descriptor{
			PCIeAddr: 0x3000,
			Len:      256,
			Tag:      2,
		})

		Expect(engine.Run()).To(Succeed())

		host, err := rc.ReadMem(0x3000, 256)
		Expect(err).NotTo(HaveOccurred())
		Expect(host).To(Equal(data))
		Expect(agent.tags()).To(Equal([]uint64{2}))
		Expect(descs.TotalCount()).To(Equal(uint64(2)))
	})
})
