package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pciedma/sim"
)

var _ = Describe("AverageTimeTracer", func() {
	var (
		engine *sim.SerialEngine
		domain *sim.ComponentBase
		tracer *AverageTimeTracer
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		domain = sim.NewComponentBase("Domain")
		tracer = NewAverageTimeTracer(engine, KindIs("dma_write"))
		CollectTrace(domain, tracer)
	})

	It("should average the task time", func() {
		engine.Schedule(sim.NewFuncEvent(1, func() {
			StartTask("a", "", domain, "dma_write", "desc", nil)
		}))
		engine.Schedule(sim.NewFuncEvent(2, func() {
			StartTask("b", "", domain, "dma_write", "desc", nil)
			AddTaskStep("b", domain, "tlp")
			AddTaskStep("b", domain, "tlp")
		}))
		engine.Schedule(sim.NewFuncEvent(3, func() {
			EndTask("a", domain)
		}))
		engine.Schedule(sim.NewFuncEvent(6, func() {
			EndTask("b", domain)
		}))

		Expect(engine.Run()).To(Succeed())

		Expect(tracer.TotalCount()).To(Equal(uint64(2)))
		Expect(tracer.AverageTime()).To(BeNumerically("~", 3.0, 1e-9))
		Expect(tracer.MaxTime()).To(BeNumerically("~", 4.0, 1e-9))
		Expect(tracer.StepCount()).To(Equal(uint64(2)))
	})

	It("should ignore filtered tasks", func() {
		StartTask("a", "", domain, "other", "x", nil)
		EndTask("a", domain)

		Expect(tracer.TotalCount()).To(BeZero())
	})
})
