package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pciedma/sim"
)

type recordingTracer struct {
	started, stepped, ended []Task
}

func (r *recordingTracer) StartTask(task Task) { r.started = append(r.started, task) }
func (r *recordingTracer) StepTask(task Task) { r.stepped = append(r.stepped, task) }
func (r *recordingTracer) EndTask(task Task) { r.ended = append(r.ended, task) }

var _ = Describe("Api", func() {
	var (
		domain *sim.ComponentBase
		tracer *recordingTracer
	)

	BeforeEach(func() {
		domain = sim.NewComponentBase("Domain")
		tracer = &recordingTracer{}
		CollectTrace(domain, tracer)
	})

	It("should panic if ID is not given", func() {
		Expect(func() {
			StartTask("", "123", domain, "kind", "what", nil)
		}).Should(Panic())
	})

	It("should panic if kind is empty", func() {
		Expect(func() {
			StartTask("id", "123", domain, "", "what", nil)
		}).Should(Panic())
	})

	It("should panic if what is empty", func() {
		Expect(func() {
			StartTask("id", "123", domain, "kind", "", nil)
		}).Should(Panic())
	})

	It("should skip validation when nobody listens", func() {
		quiet := sim.NewComponentBase("Quiet")

		Expect(func() {
			StartTask("", "", quiet, "", "", nil)
		}).NotTo(Panic())
	})

	It("should forward the task life cycle to the tracer", func() {
		StartTask("t1", "p1", domain, "dma_write", "desc", nil)
		AddTaskStep("t1", domain, "tlp")
		EndTask("t1", domain)

		Expect(tracer.started).To(HaveLen(1))
		Expect(tracer.started[0].Where).To(Equal("Domain"))
		Expect(tracer.started[0].ParentID).To(Equal("p1"))
		Expect(tracer.stepped).To(HaveLen(1))
		Expect(tracer.stepped[0].Steps[0].What).To(Equal("tlp"))
		Expect(tracer.ended).To(HaveLen(1))
		Expect(tracer.ended[0].ID).To(Equal("t1"))
	})
})
