package tracing

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/pciedma/datarecording"
	"github.com/sarchlab/pciedma/sim"
)

var _ = Describe("DBTracer", func() {
	var (
		dir      string
		engine   *sim.SerialEngine
		domain   *sim.ComponentBase
		recorder datarecording.DataRecorder
		tracer   *DBTracer
	)

	BeforeEach(func() {
		var err error

		dir, err = os.MkdirTemp("", "dbtracer")
		Expect(err).NotTo(HaveOccurred())

		recorder, err = datarecording.New(filepath.Join(dir, "trace"))
		Expect(err).NotTo(HaveOccurred())

		engine = sim.NewSerialEngine()
		domain = sim.NewComponentBase("DMA")
		tracer = NewDBTracer(engine, recorder)
		CollectTrace(domain, tracer)
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("should write finished tasks and their steps", func() {
		engine.Schedule(sim.NewFuncEvent(1, func() {
			StartTask("t1", "", domain, "dma_write", "desc", nil)
			StartTask("t2", "", domain, "dma_write", "desc", nil)
		}))
		engine.Schedule(sim.NewFuncEvent(2, func() {
			AddTaskStep("t1", domain, "tlp")
		}))
		engine.Schedule(sim.NewFuncEvent(4, func() {
			EndTask("t1", domain)
		}))

		Expect(engine.Run()).To(Succeed())
		Expect(tracer.InflightTasks()).To(Equal(1))
		Expect(recorder.Close()).To(Succeed())

		reader, err := datarecording.NewReader(
			filepath.Join(dir, "trace.sqlite3"))
		Expect(err).NotTo(HaveOccurred())
		defer reader.Close()

		reader.MapTable("trace", taskTableEntry{})
		reader.MapTable("trace_steps", stepTableEntry{})

		tasks, total, err := reader.Query(context.Background(), "trace",
			datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(1))

		task := tasks[0].(*taskTableEntry)
		Expect(task.ID).To(Equal("t1"))
		Expect(task.Location).To(Equal("DMA"))
		Expect(task.StartTime).To(Equal(1.0))
		Expect(task.EndTime).To(Equal(4.0))
		Expect(task.Steps).To(Equal(1))

		steps, _, err := reader.Query(context.Background(), "trace_steps",
			datarecording.QueryParams{})
		Expect(err).NotTo(HaveOccurred())
		Expect(steps).To(HaveLen(1))
		Expect(steps[0].(*stepTableEntry).Time).To(Equal(2.0))
	})
})
