package tracing

import (
	"sync"

	"github.com/sarchlab/pciedma/datarecording"
	"github.com/sarchlab/pciedma/sim"
)

type taskTableEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
	Steps     int
}

type stepTableEntry struct {
	TaskID string
	Time   float64
	What   string
}

// DBTracer is a tracer that stores finished tasks and their steps into a
// data recorder.
type DBTracer struct {
	lock       sync.Mutex
	timeTeller sim.TimeTeller
	backend    datarecording.DataRecorder

	tracingTasks map[string]Task
}

// NewDBTracer creates a new DBTracer. It creates the trace and trace_steps
// tables in the recorder.
func NewDBTracer(
	timeTeller sim.TimeTeller,
	dataRecorder datarecording.DataRecorder,
) *DBTracer {
	dataRecorder.CreateTable("trace", taskTableEntry{})
	dataRecorder.CreateTable("trace_steps", stepTableEntry{})

	return &DBTracer{
		timeTeller:   timeTeller,
		backend:      dataRecorder,
		tracingTasks: make(map[string]Task),
	}
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	task.StartTime = t.timeTeller.CurrentTime()
	t.tracingTasks[task.ID] = task
}

// StepTask records a step of a task.
func (t *DBTracer) StepTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	originalTask, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	now := t.timeTeller.CurrentTime()
	for _, step := range task.Steps {
		step.Time = now
		originalTask.Steps = append(originalTask.Steps, step)

		t.backend.InsertData("trace_steps", stepTableEntry{
			TaskID: task.ID,
			Time:   float64(now),
			What:   step.What,
		})
	}

	t.tracingTasks[task.ID] = originalTask
}

// EndTask writes the finished task into the recorder.
func (t *DBTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	originalTask, ok := t.tracingTasks[task.ID]
	if !ok {
		return
	}

	delete(t.tracingTasks, task.ID)

	t.backend.InsertData("trace", taskTableEntry{
		ID:        originalTask.ID,
		ParentID:  originalTask.ParentID,
		Kind:      originalTask.Kind,
		What:      originalTask.What,
		Location:  originalTask.Where,
		StartTime: float64(originalTask.StartTime),
		EndTime:   float64(t.timeTeller.CurrentTime()),
		Steps:     len(originalTask.Steps),
	})
}

// InflightTasks returns the number of tasks started but not finished.
func (t *DBTracer) InflightTasks() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.tracingTasks)
}
