package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pciedma/sim"
)

var _ = Describe("BusyTimeTracer", func() {
	var (
		engine *sim.SerialEngine
		domain *sim.ComponentBase
		tracer *BusyTimeTracer
	)

	at := func(t sim.VTimeInSec, fn func()) {
		engine.Schedule(sim.NewFuncEvent(t, fn))
	}

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		domain = sim.NewComponentBase("Domain")
		tracer = NewBusyTimeTracer(engine, KindIs("dma_write"))
		CollectTrace(domain, tracer)
	})

	It("should count overlapping tasks once", func() {
		at(1, func() { StartTask("a", "", domain, "dma_write", "desc", nil) })
		at(2, func() { StartTask("b", "", domain, "dma_write", "desc", nil) })
		at(3, func() { EndTask("a", domain) })
		at(5, func() { EndTask("b", domain) })
		at(7, func() { StartTask("c", "", domain, "dma_write", "desc", nil) })
		at(8, func() { EndTask("c", domain) })

		Expect(engine.Run()).To(Succeed())

		Expect(tracer.BusyTime()).To(BeNumerically("~", 5.0, 1e-9))
	})

	It("should include the open busy period", func() {
		at(1, func() { StartTask("a", "", domain, "dma_write", "desc", nil) })
		at(4, func() {})

		Expect(engine.Run()).To(Succeed())

		Expect(tracer.BusyTime()).To(BeNumerically("~", 3.0, 1e-9))

		tracer.TerminateAllTasks()
		EndTask("a", domain)
		Expect(tracer.BusyTime()).To(BeNumerically("~", 3.0, 1e-9))
	})

	It("should ignore filtered tasks", func() {
		at(1, func() { StartTask("a", "", domain, "other", "x", nil) })
		at(2, func() { EndTask("a", domain) })

		Expect(engine.Run()).To(Succeed())

		Expect(tracer.BusyTime()).To(BeZero())
	})
})
